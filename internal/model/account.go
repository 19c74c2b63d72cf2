package model

import "time"

// Status is the payment-health state of a credit account. Transitions only
// happen through the escalation table in the service package.
type Status string

const (
	StatusActive        Status = "active"
	StatusWarning       Status = "warning"
	StatusBudgetReduced Status = "budget_reduced"
	StatusPaused        Status = "paused"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusWarning, StatusBudgetReduced, StatusPaused:
		return true
	}
	return false
}

// Multiplier returns the budget multiplier locked to the status. It is always
// exactly one of 0.0, 0.5 and 1.0; the registry never stores a transitional value.
func (s Status) Multiplier() float64 {
	switch s {
	case StatusBudgetReduced:
		return 0.5
	case StatusPaused:
		return 0.0
	default:
		return 1.0
	}
}

// CreditAccount is the denormalized registry record for one billable customer.
// Balance is a snapshot of the ledger sum; the ledger remains the source of
// truth and the reconciliation sweep repairs drift.
type CreditAccount struct {
	AccountID           string     `json:"account_id"`
	Balance             Money      `json:"balance"`
	DailyBudgetBase     Money      `json:"daily_budget_base"`
	BudgetMultiplier    float64    `json:"budget_multiplier"`
	EstimatedDailySpend Money      `json:"estimated_daily_spend"`
	Status              Status     `json:"status"`
	FailedChargeCount   int        `json:"failed_charge_count"`
	LastChargeAttemptAt *time.Time `json:"last_charge_attempt_at,omitempty"`
	StatusEnteredAt     time.Time  `json:"status_entered_at"`
	CampaignsPausedAt   *time.Time `json:"campaigns_paused_at,omitempty"`
	Timezone            string     `json:"timezone"`
	Closed              bool       `json:"closed"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Location resolves the account's billing timezone, falling back to UTC for
// unknown or empty names.
func (a *CreditAccount) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DaysRemaining estimates how many days of spend the current balance covers.
// Zero estimated spend means no urgency; callers treat the returned ok=false
// as "do not trigger a top-up".
func (a *CreditAccount) DaysRemaining() (float64, bool) {
	if a.EstimatedDailySpend <= 0 {
		return 0, false
	}
	return float64(a.Balance) / float64(a.EstimatedDailySpend), true
}
