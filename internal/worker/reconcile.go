package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"adledger/internal/service"
)

// ReconcileWorker periodically re-converges ad-platform state and registry
// snapshots onto the ledger truth.
type ReconcileWorker struct {
	engine   *service.Engine
	interval time.Duration
}

func NewReconcileWorker(engine *service.Engine, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{engine: engine, interval: interval}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	slog.Info("reconcile worker is running", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconcile worker shutting down")
			return nil
		case <-ticker.C:
			if err := w.engine.Reconcile(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}

// Start implements the infrastructure.Server interface.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *ReconcileWorker) Stop(ctx context.Context) error {
	return nil
}
