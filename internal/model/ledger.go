package model

import (
	"fmt"
	"time"
)

// EntryKind classifies a ledger entry. The sign convention is part of the
// contract: charges and refunds are non-negative, deductions non-positive,
// adjustments carry either sign.
type EntryKind string

const (
	KindCharge     EntryKind = "charge"
	KindDeduction  EntryKind = "deduction"
	KindRefund     EntryKind = "refund"
	KindAdjustment EntryKind = "adjustment"
)

// LedgerEntry is one immutable row of the append-only ledger.
type LedgerEntry struct {
	EntryID        string    `json:"entry_id"`
	AccountID      string    `json:"account_id"`
	Kind           EntryKind `json:"kind"`
	Amount         Money     `json:"amount"`
	BalanceAfter   Money     `json:"balance_after"`
	IdempotencyKey string    `json:"idempotency_key"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// SettlementRun records that one business day's spend was deducted exactly
// once for an account. It is the idempotency guard for the settlement job.
type SettlementRun struct {
	AccountID    string    `json:"account_id"`
	BusinessDate string    `json:"business_date"` // YYYY-MM-DD in the account's timezone
	Spend        Money     `json:"spend"`
	SettledAt    time.Time `json:"settled_at"`
}

// SettlementKey builds the idempotency key for a day's deduction.
func SettlementKey(accountID, businessDate string) string {
	return fmt.Sprintf("%s:%s:settlement", accountID, businessDate)
}

// TopUpKey builds the idempotency key for a day's top-up charge.
func TopUpKey(accountID, attemptDate string) string {
	return fmt.Sprintf("%s:%s:topup", accountID, attemptDate)
}
