// Package sweeper runs the retention sweep on a timer, for deployments that do
// not rely on sweeping at every engine entry point.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medssi/internal/exchange/models"
)

// Engine exposes the engine's sweep.
type Engine interface {
	Sweep(ctx context.Context) (models.SweepResult, error)
}

type Worker struct {
	engine   Engine
	interval time.Duration
	logger   *slog.Logger
}

type Option func(*Worker)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func New(engine Engine, opts ...Option) (*Worker, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	w := &Worker{
		engine:   engine,
		interval: time.Minute,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start sweeps every interval until ctx is cancelled. A failed sweep is
// logged and retried on the next tick.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep.
func (w *Worker) RunOnce(ctx context.Context) (models.SweepResult, error) {
	res, err := w.engine.Sweep(ctx)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("sweep: %w", err)
	}
	if res.Changed() {
		w.logger.DebugContext(ctx, "retention sweep applied",
			"offers_expired", res.OffersExpired,
			"credentials_deleted", res.CredentialsDeleted,
			"credentials_sealed", res.CredentialsSealed,
			"sessions_purged", res.SessionsPurged,
		)
	}
	return res, nil
}
