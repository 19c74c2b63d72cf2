package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"adledger/internal/metrics"
	"adledger/internal/model"
)

const businessDateLayout = "2006-01-02"

// SettleableDate returns the most recent business date that is ready to
// settle for the account: yesterday in the account's timezone once the local
// clock has passed the boundary hour, the day before otherwise.
func (e *Engine) SettleableDate(acct *model.CreditAccount, now time.Time) string {
	local := now.In(acct.Location())
	date := local.AddDate(0, 0, -1)
	if local.Hour() < e.params.SettlementHour {
		date = local.AddDate(0, 0, -2)
	}
	return date.Format(businessDateLayout)
}

// settleLookbackDays bounds how far the sweep walks back for business days
// whose settlement was deferred past the next boundary.
const settleLookbackDays = 14

// SettleDue runs one settlement sweep: every open account gets every closed,
// still-unsettled business day settled exactly once, guarded by the
// SettlementRun record. Days deferred past a boundary (spend source outage,
// process downtime) are caught up here, oldest first. The sweep is
// cancellable between accounts, never mid-transaction.
func (e *Engine) SettleDue(ctx context.Context) error {
	accounts, err := e.store.ListOpenAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			// Partially completed sweeps are picked up by the next run.
			return err
		}
		acct := &accounts[i]
		dates, err := e.dueDates(ctx, acct)
		if err != nil {
			slog.Error("failed to compute due dates", "account_id", acct.AccountID, "error", err)
			continue
		}
		for _, date := range dates {
			if err := e.Settle(ctx, acct.AccountID, date); err != nil {
				switch {
				case errors.Is(err, model.ErrAlreadySettled):
					// Normal: the guard did its job.
				case errors.Is(err, model.ErrSpendSourceUnavailable):
					// Already counted and alerted inside Settle.
				default:
					metrics.SettlementsTotal.WithLabelValues("error").Inc()
					slog.Error("settlement failed", "account_id", acct.AccountID, "business_date", date, "error", err)
				}
			}
		}
	}
	return nil
}

// dueDates returns the business dates the account still owes a settlement
// for, oldest first. It walks back from the current settleable date until it
// reaches an already-settled day, the account's creation date, or the
// lookback bound, so a day deferred past a boundary self-heals on a later
// sweep instead of requiring an operator resettle.
func (e *Engine) dueDates(ctx context.Context, acct *model.CreditAccount) ([]string, error) {
	latest := e.SettleableDate(acct, e.now())
	day, err := time.Parse(businessDateLayout, latest)
	if err != nil {
		return nil, err
	}
	createdDate := acct.CreatedAt.In(acct.Location()).Format(businessDateLayout)

	dates := []string{latest}
	for i := 1; i < settleLookbackDays; i++ {
		date := day.AddDate(0, 0, -i).Format(businessDateLayout)
		if !acct.CreatedAt.IsZero() && date < createdDate {
			// Nothing owed before the account existed.
			break
		}
		exists, err := e.store.RunExists(ctx, acct.AccountID, date)
		if err != nil {
			return nil, err
		}
		if exists {
			// Everything older is settled.
			break
		}
		dates = append(dates, date)
	}
	for l, r := 0, len(dates)-1; l < r; l, r = l+1, r-1 {
		dates[l], dates[r] = dates[r], dates[l]
	}
	return dates, nil
}

// Settle deducts one business day's actual spend from the account, exactly
// once. Safe under concurrent and duplicate invocation: the SettlementRun
// record and the ledger idempotency key both guard the write, and the store
// serializes per account.
func (e *Engine) Settle(ctx context.Context, accountID, businessDate string) error {
	if _, err := time.Parse(businessDateLayout, businessDate); err != nil {
		return fmt.Errorf("invalid business date %q: %w", businessDate, err)
	}

	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Closed {
		return fmt.Errorf("account %s is retired: %w", accountID, model.ErrInvalidStateTransition)
	}

	exists, err := e.store.RunExists(ctx, accountID, businessDate)
	if err != nil {
		return err
	}
	if exists {
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return model.ErrAlreadySettled
	}

	spend, err := e.fetchSpend(ctx, accountID, businessDate)
	if err != nil {
		// Defer, never guess a deduction amount. Operators are alerted via
		// the log stream and the deferred counter.
		metrics.SettlementsTotal.WithLabelValues("deferred").Inc()
		slog.Error("spend source unavailable, settlement deferred",
			"account_id", accountID, "business_date", businessDate, "error", err)
		return fmt.Errorf("%v: %w", err, model.ErrSpendSourceUnavailable)
	}

	entry, applied, err := e.store.SettleDay(ctx, accountID, businessDate, spend)
	if err != nil {
		return err
	}
	if !applied {
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return model.ErrAlreadySettled
	}
	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	slog.Info("settled business day",
		"account_id", accountID, "business_date", businessDate,
		"spend", spend.String(), "balance", entry.BalanceAfter.String())

	// Consumption metering is fire-and-forget; a failed report never
	// affects the ledger.
	if err := e.usage.Report(ctx, accountID, spend, businessDate); err != nil {
		slog.Warn("usage report failed", "account_id", accountID, "error", err)
	}

	est, err := e.store.UpdateEstimate(ctx, accountID, e.params.EstimateWindowDays)
	if err != nil {
		return err
	}

	// Low-balance check against the ledger truth, not the cache.
	balance, err := e.store.Balance(ctx, accountID)
	if err != nil {
		return err
	}
	if est <= 0 {
		// No spend velocity, no urgency.
		return nil
	}
	daysRemaining := float64(balance) / float64(est)
	if daysRemaining >= e.params.LowBalanceDays || acct.Status == model.StatusPaused {
		return nil
	}

	slog.Info("balance low, attempting top-up",
		"account_id", accountID, "days_remaining", daysRemaining, "balance", balance.String())
	if _, err := e.TopUp(ctx, accountID); err != nil && !errors.Is(err, model.ErrConcurrencyConflict) {
		slog.Error("top-up attempt failed", "account_id", accountID, "error", err)
	}
	return nil
}

// fetchSpend pulls the day's final spend with bounded fibonacci backoff.
func (e *Engine) fetchSpend(ctx context.Context, accountID, businessDate string) (model.Money, error) {
	var spend model.Money
	attempts := e.params.SpendFetchAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewFibonacci(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.params.GatewayTimeout)
		defer cancel()
		got, err := e.spend.ActualSpend(callCtx, accountID, businessDate)
		if err != nil {
			return retry.RetryableError(err)
		}
		spend = got
		return nil
	})
	if err != nil {
		return 0, err
	}
	return spend, nil
}
