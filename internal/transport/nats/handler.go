package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"adledger/internal/model"
	"adledger/internal/service"
)

// Handler subscribes to billing command topics and delegates to the billing
// service. Commands are delivered at-least-once; the underlying operations
// are idempotent, so redelivery is safe.
type Handler struct {
	svc  service.BillingService
	nc   *nats.Conn
	subs []*nats.Subscription
}

func NewHandler(svc service.BillingService, nc *nats.Conn) *Handler {
	return &Handler{svc: svc, nc: nc}
}

// Start subscribes to command topics and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	s1, err := h.nc.QueueSubscribe("billing.commands.resettle", "billing_group", func(m *nats.Msg) {
		var req struct {
			AccountID    string `json:"account_id"`
			BusinessDate string `json:"business_date"`
		}
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal resettle command", "error", err)
			return
		}
		if err := h.svc.ForceResettle(ctx, req.AccountID, req.BusinessDate); err != nil {
			slog.Error("nats: resettle failed", "error", err,
				"account_id", req.AccountID, "business_date", req.BusinessDate)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s1)

	s2, err := h.nc.QueueSubscribe("billing.commands.topup", "billing_group", func(m *nats.Msg) {
		var req struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal topup command", "error", err)
			return
		}
		if _, err := h.svc.ForceTopUp(ctx, req.AccountID); err != nil {
			slog.Error("nats: topup failed", "error", err, "account_id", req.AccountID)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s2)

	s3, err := h.nc.QueueSubscribe("billing.commands.provision", "billing_group", func(m *nats.Msg) {
		var req struct {
			AccountID       string `json:"account_id"`
			DailyBudgetBase int64  `json:"daily_budget_base_cents"`
			Timezone        string `json:"timezone"`
		}
		if err := json.Unmarshal(m.Data, &req); err != nil {
			slog.Error("nats: failed to unmarshal provision command", "error", err)
			return
		}
		if err := h.svc.CreateAccount(ctx, req.AccountID, model.Money(req.DailyBudgetBase), req.Timezone); err != nil {
			slog.Error("nats: provision failed", "error", err, "account_id", req.AccountID)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, s3)

	slog.Info("NATS billing command handler is running")

	// Block until context is cancelled.
	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}
