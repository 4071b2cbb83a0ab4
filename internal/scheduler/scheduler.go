// Package scheduler drives dispatch passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/nudge/internal/dispatch"
)

// Runner runs one pass.
type Runner interface {
	RunPass(ctx context.Context, now time.Time) (dispatch.Summary, error)
}

type Config struct {
	Interval   time.Duration
	RunOnStart bool
}

// Driver calls Runner.RunPass on every tick. It holds no state between
// passes; anything a pass needs to remember lives in the ledger.
type Driver struct {
	runner Runner
	config Config
	logger *zap.Logger
	clock  func() time.Time
}

func New(runner Runner, cfg Config, logger *zap.Logger) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}

	return &Driver{
		runner: runner,
		config: cfg,
		logger: logger,
		clock:  time.Now,
	}
}

// Start blocks until ctx is cancelled. A failed pass is logged and the
// next tick runs as usual.
func (d *Driver) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.logger.Info("scheduler started",
		zap.Duration("interval", d.config.Interval),
		zap.Bool("run_on_start", d.config.RunOnStart),
	)

	if d.config.RunOnStart {
		d.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Driver) tick(ctx context.Context) {
	sum, err := d.runner.RunPass(ctx, d.clock())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		d.logger.Error("dispatch pass failed",
			zap.Error(err),
			zap.Int("processed", sum.Processed),
			zap.Int("failed", sum.Failed),
		)
	}
}
