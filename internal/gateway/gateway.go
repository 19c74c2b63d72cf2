package gateway

import (
	"context"

	"adledger/internal/model"
)

// ChargeResult is the payment gateway's answer to a charge submission.
// A transport-level error (timeout, outage) is returned as an error instead
// and treated as gateway-unavailable by the caller.
type ChargeResult struct {
	Success       bool   `json:"success"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// PaymentGateway charges the customer's payment method. Charge must honour the
// idempotency key: re-submitting the same key never produces a second charge.
type PaymentGateway interface {
	Charge(ctx context.Context, accountID string, amount model.Money, idempotencyKey string) (ChargeResult, error)
	DefaultPaymentMethod(ctx context.Context, accountID string) (string, error)
}

// SpendSource returns the authoritative, final spend for a business date.
type SpendSource interface {
	ActualSpend(ctx context.Context, accountID, businessDate string) (model.Money, error)
}

// PlatformState is the campaign platform's last known throttle state for an
// account, read by the reconciliation sweep.
type PlatformState struct {
	Paused     bool    `json:"paused"`
	Multiplier float64 `json:"multiplier"`
}

// CampaignPlatform controls live ad spend. Calls are best-effort from the
// billing engine's perspective: failures never roll back a ledger write.
type CampaignPlatform interface {
	SetBudgetMultiplier(ctx context.Context, accountID string, multiplier float64) error
	PauseAll(ctx context.Context, accountID string) error
	ResumeAll(ctx context.Context, accountID string) error
	State(ctx context.Context, accountID string) (PlatformState, error)
}

// Notifier delivers customer-facing billing events. Best-effort.
type Notifier interface {
	Notify(ctx context.Context, accountID, event string, payload map[string]any) error
}

// UsageReporter feeds consumption into invoicing/metering. Fire-and-forget.
type UsageReporter interface {
	Report(ctx context.Context, accountID string, amount model.Money, businessDate string) error
}
