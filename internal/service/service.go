package service

import (
	"context"
	"fmt"
	"time"

	"adledger/internal/gateway"
	"adledger/internal/model"
)

// Store is everything the engine needs from persistence. The repository
// package provides the Postgres/Redis implementation; tests use in-memory
// fakes. Every mutating method is atomic per account and idempotent under
// redelivery.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*model.CreditAccount, error)
	CreateAccount(ctx context.Context, acct *model.CreditAccount) error
	RetireAccount(ctx context.Context, accountID string) error
	ListOpenAccounts(ctx context.Context) ([]model.CreditAccount, error)

	Balance(ctx context.Context, accountID string) (model.Money, error)
	Entries(ctx context.Context, accountID, cursor string, limit int) ([]model.LedgerEntry, string, error)

	RunExists(ctx context.Context, accountID, businessDate string) (bool, error)
	SettleDay(ctx context.Context, accountID, businessDate string, spend model.Money) (*model.LedgerEntry, bool, error)
	ApplyCharge(ctx context.Context, accountID string, amount model.Money, idempotencyKey, description string) (*model.LedgerEntry, error)
	UpdateAccountState(ctx context.Context, acct *model.CreditAccount) error
	UpdateEstimate(ctx context.Context, accountID string, windowDays int) (model.Money, error)
	RepairBalanceSnapshot(ctx context.Context, accountID string) (model.Money, error)

	ClaimTopUp(ctx context.Context, accountID, attemptDate string) (bool, *model.TopUpOutcome, error)
	CompleteTopUp(ctx context.Context, accountID, attemptDate string, outcome *model.TopUpOutcome) error
	ReleaseTopUp(ctx context.Context, accountID, attemptDate string) error
}

// BillingService is the surface the transports (HTTP, NATS commands) depend
// on. The admin operations go through the same idempotent paths as the
// scheduled jobs.
type BillingService interface {
	GetAccount(ctx context.Context, accountID string) (*model.CreditAccount, error)
	Balance(ctx context.Context, accountID string) (model.Money, error)
	Entries(ctx context.Context, accountID, cursor string, limit int) ([]model.LedgerEntry, string, error)
	CreateAccount(ctx context.Context, accountID string, dailyBudgetBase model.Money, timezone string) error
	RetireAccount(ctx context.Context, accountID string) error
	ForceResettle(ctx context.Context, accountID, businessDate string) error
	ForceTopUp(ctx context.Context, accountID string) (*model.TopUpOutcome, error)
}

// Params are the product tunables, all sourced from configuration.
type Params struct {
	LowBalanceDays     float64
	TopUpDays          int
	MinCharge          model.Money
	GraceWindow        time.Duration
	SettlementHour     int
	SpendFetchAttempts int
	EstimateWindowDays int
	GatewayTimeout     time.Duration
}

// Engine is the billing core: settlement, top-up, escalation and
// reconciliation, all against the Store as the single system of record.
type Engine struct {
	store    Store
	spend    gateway.SpendSource
	payments gateway.PaymentGateway
	platform gateway.CampaignPlatform
	notifier gateway.Notifier
	usage    gateway.UsageReporter
	params   Params

	now func() time.Time // injectable clock for tests
}

func NewEngine(store Store, spend gateway.SpendSource, payments gateway.PaymentGateway,
	platform gateway.CampaignPlatform, notifier gateway.Notifier, usage gateway.UsageReporter,
	params Params) *Engine {
	return &Engine{
		store:    store,
		spend:    spend,
		payments: payments,
		platform: platform,
		notifier: notifier,
		usage:    usage,
		params:   params,
		now:      time.Now,
	}
}

func (e *Engine) GetAccount(ctx context.Context, accountID string) (*model.CreditAccount, error) {
	return e.store.GetAccount(ctx, accountID)
}

func (e *Engine) Balance(ctx context.Context, accountID string) (model.Money, error) {
	return e.store.Balance(ctx, accountID)
}

func (e *Engine) Entries(ctx context.Context, accountID, cursor string, limit int) ([]model.LedgerEntry, string, error) {
	return e.store.Entries(ctx, accountID, cursor, limit)
}

// CreateAccount provisions the registry when a customer's first campaign
// goes live. Idempotent under at-least-once event delivery.
func (e *Engine) CreateAccount(ctx context.Context, accountID string, dailyBudgetBase model.Money, timezone string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("unknown timezone %q: %w", timezone, err)
		}
	}
	return e.store.CreateAccount(ctx, &model.CreditAccount{
		AccountID:       accountID,
		DailyBudgetBase: dailyBudgetBase,
		Status:          model.StatusActive,
		Timezone:        timezone,
	})
}

func (e *Engine) RetireAccount(ctx context.Context, accountID string) error {
	return e.store.RetireAccount(ctx, accountID)
}
