package model

import "time"

// TopUpOutcome is the cached result of a day's top-up attempt. It is the
// only trace a PaymentAttempt leaves besides the ledger entry and the
// failure counter.
type TopUpOutcome struct {
	Outcome       string    `json:"outcome"` // "success" or "declined"
	Amount        Money     `json:"amount"`
	FailureReason string    `json:"failure_reason,omitempty"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

const (
	TopUpSuccess  = "success"
	TopUpDeclined = "declined"
)
