package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adledger/internal/metrics"
	"adledger/internal/model"
)

// TopUp attempts to replenish a low balance with a charge sized to cover
// TopUpDays of estimated spend, floored at the minimum charge. At most one
// charge per account per calendar day reaches the payment gateway: the Redis
// claim makes later calls return the first call's cached outcome, and a call
// racing an in-flight attempt gets ErrConcurrencyConflict (safe to retry).
func (e *Engine) TopUp(ctx context.Context, accountID string) (*model.TopUpOutcome, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Closed {
		return nil, fmt.Errorf("account %s is retired: %w", accountID, model.ErrInvalidStateTransition)
	}

	attemptDate := e.now().In(acct.Location()).Format(businessDateLayout)
	claimed, cached, err := e.store.ClaimTopUp(ctx, accountID, attemptDate)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.ChargesTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}
	if !claimed {
		return nil, fmt.Errorf("top-up already in flight for %s on %s: %w",
			accountID, attemptDate, model.ErrConcurrencyConflict)
	}

	amount := e.topUpAmount(acct)
	idemKey := model.TopUpKey(accountID, attemptDate)

	res, chargeErr := e.payments.Charge(ctx, accountID, amount, idemKey)
	now := e.now().UTC()

	switch {
	case chargeErr != nil:
		// Transient infrastructure failure. Release the claim so the next
		// scheduled run may retry today; the failure still escalates.
		metrics.ChargesTotal.WithLabelValues("gateway_unavailable").Inc()
		if err := e.store.ReleaseTopUp(ctx, accountID, attemptDate); err != nil {
			slog.Warn("failed to release top-up claim", "account_id", accountID, "error", err)
		}
		if err := e.applyOutcome(ctx, acct, OutcomeGatewayUnavailable, now); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("charge %s for %s: %v: %w",
			amount.String(), accountID, chargeErr, model.ErrGatewayUnavailable)

	case res.Success:
		metrics.ChargesTotal.WithLabelValues("success").Inc()
		entry, err := e.store.ApplyCharge(ctx, accountID, amount, idemKey,
			fmt.Sprintf("top-up covering %d days of spend", e.params.TopUpDays))
		if err != nil {
			return nil, err
		}
		outcome := &model.TopUpOutcome{Outcome: model.TopUpSuccess, Amount: amount, AttemptedAt: now}
		if err := e.store.CompleteTopUp(ctx, accountID, attemptDate, outcome); err != nil {
			slog.Warn("failed to cache top-up outcome", "account_id", accountID, "error", err)
		}
		if err := e.applyOutcome(ctx, acct, OutcomeSuccess, now); err != nil {
			return nil, err
		}
		slog.Info("top-up charged", "account_id", accountID,
			"amount", amount.String(), "balance", entry.BalanceAfter.String())
		return outcome, nil

	default:
		metrics.ChargesTotal.WithLabelValues("declined").Inc()
		outcome := &model.TopUpOutcome{
			Outcome:       model.TopUpDeclined,
			Amount:        amount,
			FailureReason: res.FailureReason,
			AttemptedAt:   now,
		}
		if err := e.store.CompleteTopUp(ctx, accountID, attemptDate, outcome); err != nil {
			slog.Warn("failed to cache top-up outcome", "account_id", accountID, "error", err)
		}
		if err := e.applyOutcome(ctx, acct, OutcomeDeclined, now); err != nil {
			return nil, err
		}
		slog.Info("top-up declined", "account_id", accountID,
			"amount", amount.String(), "reason", res.FailureReason)
		return outcome, nil
	}
}

// ForceTopUp is the support-tooling entry point, e.g. after the customer
// fixes their payment method. Same idempotent path as the scheduler.
func (e *Engine) ForceTopUp(ctx context.Context, accountID string) (*model.TopUpOutcome, error) {
	return e.TopUp(ctx, accountID)
}

// ForceResettle re-runs settlement for a specific business date; the
// SettlementRun guard makes it a no-op if the day was already settled.
func (e *Engine) ForceResettle(ctx context.Context, accountID, businessDate string) error {
	err := e.Settle(ctx, accountID, businessDate)
	if errors.Is(err, model.ErrAlreadySettled) {
		return nil
	}
	return err
}

func (e *Engine) topUpAmount(acct *model.CreditAccount) model.Money {
	amount := acct.EstimatedDailySpend.MulDays(e.params.TopUpDays)
	if amount < e.params.MinCharge {
		amount = e.params.MinCharge
	}
	return amount
}

// applyOutcome updates the failure counter, runs the escalation decision,
// persists the new account state, and then issues the best-effort side
// effects. The ledger/registry write commits first; platform control and
// notifications never block or roll it back.
func (e *Engine) applyOutcome(ctx context.Context, acct *model.CreditAccount, outcome Outcome, now time.Time) error {
	prev := acct.Status
	tr := Decide(prev, outcome, now.Sub(acct.StatusEnteredAt), e.params.GraceWindow)

	if outcome == OutcomeSuccess {
		acct.FailedChargeCount = 0
	} else {
		acct.FailedChargeCount++
	}
	acct.LastChargeAttemptAt = &now

	if tr.Changed(prev) {
		acct.Status = tr.Next
		acct.StatusEnteredAt = now
		metrics.EscalationsTotal.WithLabelValues(string(tr.Next)).Inc()
		slog.Info("account status transition", "account_id", acct.AccountID,
			"from", string(prev), "to", string(tr.Next), "failed_charges", acct.FailedChargeCount)
	}
	acct.BudgetMultiplier = tr.Multiplier
	switch {
	case tr.Next == model.StatusPaused && prev != model.StatusPaused:
		acct.CampaignsPausedAt = &now
	case outcome == OutcomeSuccess:
		acct.CampaignsPausedAt = nil
	}

	if err := e.store.UpdateAccountState(ctx, acct); err != nil {
		return err
	}

	e.applyCampaignAction(ctx, acct.AccountID, tr)
	if tr.Notify != "" {
		if err := e.notifier.Notify(ctx, acct.AccountID, tr.Notify, map[string]any{
			"status":            string(acct.Status),
			"budget_multiplier": acct.BudgetMultiplier,
			"failed_charges":    acct.FailedChargeCount,
		}); err != nil {
			slog.Warn("notification failed", "account_id", acct.AccountID, "event", tr.Notify, "error", err)
		}
	}
	return nil
}

// applyCampaignAction issues the platform side effect. Failures are logged
// and left for the reconciliation sweep to heal.
func (e *Engine) applyCampaignAction(ctx context.Context, accountID string, tr Transition) {
	var err error
	switch tr.Action {
	case ActionSetMultiplier:
		err = e.platform.SetBudgetMultiplier(ctx, accountID, tr.Multiplier)
	case ActionPauseAll:
		err = e.platform.PauseAll(ctx, accountID)
	case ActionResumeAll:
		err = e.platform.ResumeAll(ctx, accountID)
	default:
		return
	}
	if err != nil {
		metrics.PlatformCallFailures.Inc()
		slog.Error("campaign platform call failed, reconcile sweep will retry",
			"account_id", accountID, "action", tr.Action, "error", err)
	}
}
