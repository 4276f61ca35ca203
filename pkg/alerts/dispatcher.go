package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ogulcanaydogan/opsalert/internal/metrics"
	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the part of the alert store the dispatcher needs.
type Store interface {
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	UpdateStatus(ctx context.Context, id string, status model.Status, update model.StatusUpdate) error
	ListAlerts(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error)
}

// Dispatcher delivers stored alerts to their webhook and records the outcome.
type Dispatcher struct {
	store     Store
	sender    Sender
	endpoints Endpoints
	clock     clock.Clock
	logger    *zap.Logger

	inflight singleflight.Group
	effects  sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil clock uses the system clock and a
// nil logger discards output.
func NewDispatcher(store Store, sender Sender, endpoints Endpoints, clk clock.Clock, logger *zap.Logger) *Dispatcher {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		store:     store,
		sender:    sender,
		endpoints: endpoints,
		clock:     clk,
		logger:    logger,
	}
}

// Dispatch sends one alert and moves it to sent or failed. Concurrent calls
// for the same id within this process share a single delivery.
//
// The returned alert reflects the recorded state when available, including
// on delivery errors.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) (*model.Alert, error) {
	v, err, _ := d.inflight.Do(id, func() (any, error) {
		return d.dispatch(ctx, id)
	})
	a, _ := v.(*model.Alert)
	return a, err
}

func (d *Dispatcher) dispatch(ctx context.Context, id string) (*model.Alert, error) {
	alert, err := d.store.GetAlert(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			metrics.Dispatches.WithLabelValues("", metrics.OutcomeNotFound).Inc()
			return nil, err
		}
		return nil, fmt.Errorf("load alert: %w", err)
	}
	if alert.Status == model.StatusSent {
		metrics.Dispatches.WithLabelValues(string(alert.Type), metrics.OutcomeAlreadyProcessed).Inc()
		return alert, fmt.Errorf("alert %q: %w", id, model.ErrAlreadyProcessed)
	}

	log := d.logger.With(
		zap.String("alert_id", alert.ID),
		zap.String("alert_type", string(alert.Type)),
	)

	route, err := RouteFor(alert.Type)
	if err != nil {
		return d.markFailed(ctx, log, alert, &DeliveryError{AlertID: alert.ID, Err: err})
	}
	url := d.endpoints.URL(route.Endpoint)
	if url == "" {
		return d.markFailed(ctx, log, alert, &DeliveryError{
			AlertID:  alert.ID,
			Endpoint: string(route.Endpoint),
			Err:      fmt.Errorf("%s webhook URL not configured", route.Endpoint),
		})
	}

	if err := d.sender.Send(ctx, url, route.Build(alert)); err != nil {
		derr := &DeliveryError{AlertID: alert.ID, Endpoint: url, Err: err}
		var se *StatusError
		if errors.As(err, &se) {
			derr.StatusCode = se.StatusCode
		}
		return d.markFailed(ctx, log, alert, derr)
	}

	sentAt := d.clock.Now().UTC()
	// Record the outcome even if the caller gave up while the POST was in flight.
	if err := d.store.UpdateStatus(context.WithoutCancel(ctx), alert.ID, model.StatusSent, model.StatusUpdate{
		SentAt:     &sentAt,
		WebhookURL: url,
	}); err != nil {
		metrics.StoreWriteFailures.Inc()
		metrics.Dispatches.WithLabelValues(string(alert.Type), metrics.OutcomeStoreError).Inc()
		log.Error("alert delivered but status write failed", zap.Error(err))
		return alert, &StoreWriteError{AlertID: alert.ID, Status: model.StatusSent, Delivered: true, Err: err}
	}

	alert.Status = model.StatusSent
	alert.SentAt = &sentAt
	alert.WebhookURL = url
	alert.LastError = ""
	alert.Attempts++
	metrics.Dispatches.WithLabelValues(string(alert.Type), metrics.OutcomeSent).Inc()
	log.Info("alert sent", zap.String("webhook_url", url))

	if route.PhaseActivation {
		snapshot := *alert
		d.effects.Add(1)
		go func() {
			defer d.effects.Done()
			d.activatePhase(context.WithoutCancel(ctx), log, &snapshot)
		}()
	}
	return alert, nil
}

func (d *Dispatcher) markFailed(ctx context.Context, log *zap.Logger, alert *model.Alert, derr *DeliveryError) (*model.Alert, error) {
	log.Warn("alert delivery failed", zap.String("endpoint", derr.Endpoint), zap.Error(derr.Err))

	if err := d.store.UpdateStatus(context.WithoutCancel(ctx), alert.ID, model.StatusFailed, model.StatusUpdate{
		LastError: derr.Err.Error(),
	}); err != nil {
		metrics.StoreWriteFailures.Inc()
		metrics.Dispatches.WithLabelValues(string(alert.Type), metrics.OutcomeStoreError).Inc()
		log.Error("status write failed after delivery failure", zap.Error(err))
		return alert, errors.Join(derr, &StoreWriteError{AlertID: alert.ID, Status: model.StatusFailed, Err: err})
	}

	alert.Status = model.StatusFailed
	alert.LastError = derr.Err.Error()
	alert.Attempts++
	metrics.Dispatches.WithLabelValues(string(alert.Type), metrics.OutcomeFailed).Inc()
	return alert, derr
}

// Wait blocks until in-flight phase activation calls have finished.
func (d *Dispatcher) Wait() {
	d.effects.Wait()
}

// activatePhase is best effort: failures are logged and counted, never returned.
func (d *Dispatcher) activatePhase(ctx context.Context, log *zap.Logger, alert *model.Alert) {
	url := d.endpoints.URL(EndpointPhaseActivation)
	if url == "" {
		log.Debug("phase activation webhook not configured, skipping")
		return
	}
	if err := d.sender.Send(ctx, url, buildPhaseActivation(alert, d.clock.Now())); err != nil {
		metrics.SecondaryFailures.Inc()
		log.Warn("phase activation failed", zap.String("webhook_url", url), zap.Error(err))
	}
}

// BulkResult summarizes a DispatchPending call.
type BulkResult struct {
	Attempted int               `json:"attempted"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// DispatchPending dispatches every pending alert, oldest first, regardless of
// when it was created. Per-alert failures are collected in the result.
func (d *Dispatcher) DispatchPending(ctx context.Context) (*BulkResult, error) {
	pending, err := d.store.ListAlerts(ctx, model.AlertFilter{Status: model.StatusPending})
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}

	res := &BulkResult{Errors: map[string]string{}}
	// ListAlerts is newest first.
	for i := len(pending) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := pending[i].ID
		res.Attempted++
		_, err := d.Dispatch(ctx, id)
		switch {
		case err == nil:
			res.Sent++
		case errors.Is(err, ErrStoreWrite):
			res.Failed++
			res.Errors[id] = err.Error()
		case errors.Is(err, model.ErrAlreadyProcessed):
			res.Skipped++
		default:
			res.Failed++
			res.Errors[id] = err.Error()
		}
	}
	return res, nil
}
