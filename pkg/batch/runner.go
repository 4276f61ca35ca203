package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ogulcanaydogan/opsalert/internal/metrics"
	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/evaluators"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("batch run already in progress")

// EvaluatorError records a rule that failed during a run.
type EvaluatorError struct {
	Name string
	Err  error
}

func (e *EvaluatorError) Error() string { return fmt.Sprintf("evaluator %s: %v", e.Name, e.Err) }

func (e *EvaluatorError) Unwrap() error { return e.Err }

// Store lists alerts created during a run.
type Store interface {
	ListPendingCreatedSince(ctx context.Context, since time.Time) ([]model.Alert, error)
}

// Dispatcher delivers a single alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string) (*model.Alert, error)
}

// RunReport summarizes one batch run.
type RunReport struct {
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Created         int               `json:"created"`
	Selected        int               `json:"selected"`
	Sent            int               `json:"sent"`
	Failed          int               `json:"failed"`
	EvaluatorErrors map[string]string `json:"evaluator_errors,omitempty"`
	DispatchErrors  map[string]string `json:"dispatch_errors,omitempty"`
}

// Processed is the number of alerts that reached a dispatch outcome.
func (r *RunReport) Processed() int { return r.Sent + r.Failed }

// Runner evaluates every rule, then dispatches only the alerts those rules
// created. Older pending alerts are left for DispatchPending.
type Runner struct {
	evaluators  []evaluators.Evaluator
	store       Store
	dispatcher  Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
	concurrency int

	mu sync.Mutex
}

// NewRunner creates a runner. Concurrency below 2 dispatches sequentially.
func NewRunner(evs []evaluators.Evaluator, store Store, d Dispatcher, clk clock.Clock, logger *zap.Logger, concurrency int) *Runner {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		evaluators:  evs,
		store:       store,
		dispatcher:  d,
		clock:       clk,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run executes one batch. Evaluator failures are recorded and do not stop the
// run; failing to list the new alerts does.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	start := r.clock.Now().UTC()
	report := &RunReport{
		StartedAt:       start,
		EvaluatorErrors: map[string]string{},
		DispatchErrors:  map[string]string{},
	}
	defer func() {
		report.FinishedAt = r.clock.Now().UTC()
		metrics.RunDuration.Observe(report.FinishedAt.Sub(start).Seconds())
	}()

	r.logger.Info("batch run started", zap.Time("started_at", start), zap.Int("evaluators", len(r.evaluators)))

	for _, ev := range r.evaluators {
		n, err := r.evaluate(ctx, ev)
		if err != nil {
			eerr := &EvaluatorError{Name: ev.Name(), Err: err}
			metrics.EvaluatorFailures.WithLabelValues(ev.Name()).Inc()
			report.EvaluatorErrors[ev.Name()] = eerr.Error()
			r.logger.Error("evaluator failed", zap.String("rule", ev.Name()), zap.Error(eerr))
			continue
		}
		metrics.AlertsCreated.WithLabelValues(ev.Name()).Add(float64(n))
		report.Created += n
	}

	selected, err := r.store.ListPendingCreatedSince(ctx, start)
	if err != nil {
		return report, fmt.Errorf("select new alerts: %w", err)
	}
	report.Selected = len(selected)

	r.dispatchAll(ctx, selected, report)

	r.logger.Info("batch run finished",
		zap.Int("created", report.Created),
		zap.Int("selected", report.Selected),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("evaluator_errors", len(report.EvaluatorErrors)),
	)
	return report, nil
}

func (r *Runner) evaluate(ctx context.Context, ev evaluators.Evaluator) (n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return ev.Evaluate(ctx)
}

func (r *Runner) dispatchAll(ctx context.Context, selected []model.Alert, report *RunReport) {
	var mu sync.Mutex
	record := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			report.DispatchErrors[id] = err.Error()
			return
		}
		report.Sent++
	}

	if r.concurrency < 2 {
		for _, a := range selected {
			_, err := r.dispatcher.Dispatch(ctx, a.ID)
			record(a.ID, err)
		}
		return
	}

	// The group context is not used so one failed alert never cancels another.
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, a := range selected {
		id := a.ID
		g.Go(func() error {
			_, err := r.dispatcher.Dispatch(ctx, id)
			record(id, err)
			return nil
		})
	}
	_ = g.Wait()
}
