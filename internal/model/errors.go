package model

import "errors"

var (
	// ErrPaymentDeclined is a hard charge failure requiring customer action.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrGatewayUnavailable is a transient payment infrastructure failure;
	// retried sooner than a decline but still counts toward escalation.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrSpendSourceUnavailable means the day's spend could not be fetched;
	// the settlement is deferred, never guessed.
	ErrSpendSourceUnavailable = errors.New("spend source unavailable")

	// ErrConcurrencyConflict signals lock contention; the operation is safe
	// to retry thanks to idempotency keys.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrInvalidStateTransition rejects an action disallowed in the current
	// account status, e.g. a forced top-up on a closed account.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrPlatformControlFailure marks a failed throttle call. The ledger is
	// unaffected; the reconciliation sweep retries the call.
	ErrPlatformControlFailure = errors.New("campaign platform control failed")

	ErrAccountNotFound = errors.New("account not found")

	// ErrAlreadySettled reports an idempotent skip, not a fault.
	ErrAlreadySettled = errors.New("business date already settled")

	// ErrInvalidCursor rejects a pagination cursor the caller mangled; a
	// client input error, not a server fault.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)
