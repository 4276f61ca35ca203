package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/ogulcanaydogan/opsalert/pkg/batch"
	"go.uber.org/zap"
)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context) (*batch.RunReport, error)
}

// Config controls the run loop.
type Config struct {
	Interval   time.Duration
	RunOnStart bool
	// RunTimeout bounds a single run. Zero means no bound.
	RunTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// Scheduler triggers batch runs on a fixed interval.
type Scheduler struct {
	runner Runner
	cfg    Config
	log    *zap.Logger
}

func New(runner Runner, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{runner: runner, cfg: cfg.withDefaults(), log: log.Named("scheduler")}
}

// RunForever runs batches until ctx is cancelled. Failed runs are logged and
// the loop continues.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.Interval), zap.Bool("run_on_start", s.cfg.RunOnStart))

	if s.cfg.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, batch.ErrRunInProgress) {
			s.log.Info("previous batch still running, skipping tick")
			return
		}
		s.log.Warn("batch run failed", zap.Error(err))
	}
}

// RunOnce executes a single batch, bounded by RunTimeout when set.
func (s *Scheduler) RunOnce(parentCtx context.Context) error {
	ctx := parentCtx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, s.cfg.RunTimeout)
		defer cancel()
	}
	_, err := s.runner.Run(ctx)
	return err
}
