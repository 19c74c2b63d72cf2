package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"adledger/internal/service"
)

// SettlementWorker drives the daily settlement sweep. The tick is coarse and
// frequent; the SettlementRun record is what guarantees once-per-day, so a
// redelivered or overlapping tick is harmless.
type SettlementWorker struct {
	engine *service.Engine
	tick   time.Duration
}

func NewSettlementWorker(engine *service.Engine, tick time.Duration) *SettlementWorker {
	return &SettlementWorker{engine: engine, tick: tick}
}

// Run sweeps until ctx is cancelled. A sweep is cancellable between
// accounts; a partially completed sweep is picked up by the next tick.
func (w *SettlementWorker) Run(ctx context.Context) error {
	slog.Info("settlement worker is running", "tick", w.tick.String())
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement worker shutting down")
			return nil
		case <-ticker.C:
			if err := w.engine.SettleDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("settlement sweep failed", "error", err)
			}
		}
	}
}

// Start implements the infrastructure.Server interface.
func (w *SettlementWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *SettlementWorker) Stop(ctx context.Context) error {
	return nil
}
