package batch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/alerts"
	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"github.com/ogulcanaydogan/opsalert/pkg/clock"
	"github.com/ogulcanaydogan/opsalert/pkg/evaluators"
	"github.com/ogulcanaydogan/opsalert/pkg/model"
	"github.com/ogulcanaydogan/opsalert/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

// keyedEvaluator inserts one alert per key on every call.
type keyedEvaluator struct {
	name  string
	store *storage.SQLStore
	keys  []string
}

func (e *keyedEvaluator) Name() string { return e.name }

func (e *keyedEvaluator) Evaluate(ctx context.Context) (int, error) {
	n := 0
	for _, k := range e.keys {
		a, err := e.store.InsertIfAbsent(ctx, &model.NewAlert{
			Type:         model.TypePaymentOverdue,
			ConditionKey: k,
			Title:        "Payment overdue",
			ClientID:     "c1",
		})
		if err != nil {
			return n, err
		}
		if a != nil {
			n++
		}
	}
	return n, nil
}

type funcEvaluator struct {
	name string
	fn   func(context.Context) (int, error)
}

func (e funcEvaluator) Name() string                              { return e.name }
func (e funcEvaluator) Evaluate(ctx context.Context) (int, error) { return e.fn(ctx) }

type env struct {
	store *storage.SQLStore
	clock *clock.FakeClock
	posts *atomic.Int32
	d     *alerts.Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewFakeClock(t0)
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	posts := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := alerts.NewDispatcher(store, alerts.NewWebhookSender("", time.Second),
		alerts.Endpoints{Alerts: srv.URL}, clk, zap.NewNop())
	return &env{store: store, clock: clk, posts: posts, d: d}
}

func TestRunner_DispatchesOnlyNewAlerts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	old, err := e.store.InsertIfAbsent(ctx, &model.NewAlert{Type: model.TypeNewSale, ConditionKey: "a0"})
	require.NoError(t, err)
	e.clock.Advance(time.Hour)

	ev := &keyedEvaluator{name: "overdue", store: e.store, keys: []string{"a2"}}
	r := batch.NewRunner([]evaluators.Evaluator{ev}, e.store, e.d, e.clock, zap.NewNop(), 1)

	report, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Processed())
	assert.Equal(t, t0.Add(time.Hour), report.StartedAt)
	assert.Equal(t, int32(1), e.posts.Load())

	got, err := e.store.GetAlert(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestRunner_SecondRunDispatchesNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	ev := &keyedEvaluator{name: "overdue", store: e.store, keys: []string{"k1", "k2"}}
	r := batch.NewRunner([]evaluators.Evaluator{ev}, e.store, e.d, e.clock, zap.NewNop(), 1)

	first, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Sent)

	e.clock.Advance(time.Minute)
	second, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Selected)
	assert.Zero(t, second.Processed())
	assert.Equal(t, int32(2), e.posts.Load())
}

func TestRunner_EvaluatorFailureIsolated(t *testing.T) {
	e := newEnv(t)

	evs := []evaluators.Evaluator{
		funcEvaluator{name: "broken", fn: func(context.Context) (int, error) {
			return 0, errors.New("query failed")
		}},
		funcEvaluator{name: "panicky", fn: func(context.Context) (int, error) {
			panic("nil map")
		}},
		&keyedEvaluator{name: "overdue", store: e.store, keys: []string{"k1"}},
	}
	r := batch.NewRunner(evs, e.store, e.d, e.clock, zap.NewNop(), 1)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, report.EvaluatorErrors, 2)
	assert.Contains(t, report.EvaluatorErrors["broken"], "query failed")
	assert.Contains(t, report.EvaluatorErrors["panicky"], "panic")
}

func TestRunner_DispatchFailureCounted(t *testing.T) {
	e := newEnv(t)
	d := alerts.NewDispatcher(e.store, alerts.NewWebhookSender("", time.Second),
		alerts.Endpoints{}, e.clock, zap.NewNop())

	ev := &keyedEvaluator{name: "overdue", store: e.store, keys: []string{"k1", "k2"}}
	r := batch.NewRunner([]evaluators.Evaluator{ev}, e.store, d, e.clock, zap.NewNop(), 1)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Sent)
	assert.Len(t, report.DispatchErrors, 2)
}

func TestRunner_Concurrent(t *testing.T) {
	e := newEnv(t)
	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6"}
	ev := &keyedEvaluator{name: "overdue", store: e.store, keys: keys}
	r := batch.NewRunner([]evaluators.Evaluator{ev}, e.store, e.d, e.clock, zap.NewNop(), 3)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(keys), report.Sent)
	assert.Equal(t, int32(len(keys)), e.posts.Load())
}

// blockingDispatcher holds the first dispatch until released.
type blockingDispatcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingDispatcher) Dispatch(context.Context, string) (*model.Alert, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return &model.Alert{}, nil
}

func TestRunner_RejectsOverlappingRuns(t *testing.T) {
	e := newEnv(t)
	bd := &blockingDispatcher{started: make(chan struct{}), release: make(chan struct{})}
	ev := &keyedEvaluator{name: "overdue", store: e.store, keys: []string{"k1"}}
	r := batch.NewRunner([]evaluators.Evaluator{ev}, e.store, bd, e.clock, zap.NewNop(), 1)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background())
		done <- err
	}()
	<-bd.started

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, batch.ErrRunInProgress)

	close(bd.release)
	require.NoError(t, <-done)
}
