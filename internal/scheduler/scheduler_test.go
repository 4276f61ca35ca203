package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/opsalert/internal/scheduler"
	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) Run(ctx context.Context) (*batch.RunReport, error) {
	r.calls.Add(1)
	return &batch.RunReport{}, r.err
}

func TestScheduler_RunOnStart(t *testing.T) {
	r := &countingRunner{}
	s := scheduler.New(r, scheduler.Config{Interval: time.Hour, RunOnStart: true}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunForever(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestScheduler_TicksAndSurvivesErrors(t *testing.T) {
	r := &countingRunner{err: errors.New("db down")}
	s := scheduler.New(r, scheduler.Config{Interval: 10 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.RunForever(ctx)

	require.Eventually(t, func() bool { return r.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_NoRunOnStart(t *testing.T) {
	r := &countingRunner{}
	s := scheduler.New(r, scheduler.Config{Interval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.RunForever(ctx)
	assert.Zero(t, r.calls.Load())
}

type deadlineRunner struct {
	hasDeadline bool
}

func (r *deadlineRunner) Run(ctx context.Context) (*batch.RunReport, error) {
	_, r.hasDeadline = ctx.Deadline()
	return nil, nil
}

func TestScheduler_RunOnceTimeout(t *testing.T) {
	r := &deadlineRunner{}
	s := scheduler.New(r, scheduler.Config{RunTimeout: time.Minute}, zap.NewNop())
	require.NoError(t, s.RunOnce(context.Background()))
	assert.True(t, r.hasDeadline)

	s = scheduler.New(r, scheduler.Config{}, zap.NewNop())
	require.NoError(t, s.RunOnce(context.Background()))
	assert.False(t, r.hasDeadline)
}
