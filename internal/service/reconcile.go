package service

import (
	"context"
	"fmt"
	"log/slog"

	"adledger/internal/metrics"
	"adledger/internal/model"
)

// Reconcile heals drift between the ledger-derived desired state and the ad
// platform's actual state, and repairs stale registry snapshots. It never
// re-runs financial logic: the ledger committed first and is the truth;
// physical-world effects converge here.
func (e *Engine) Reconcile(ctx context.Context) error {
	accounts, err := e.store.ListOpenAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		acct := &accounts[i]
		e.reconcileAccount(ctx, acct)
	}
	return nil
}

func (e *Engine) reconcileAccount(ctx context.Context, acct *model.CreditAccount) {
	// Registry multiplier must be a pure function of status.
	if acct.BudgetMultiplier != acct.Status.Multiplier() {
		acct.BudgetMultiplier = acct.Status.Multiplier()
		if err := e.store.UpdateAccountState(ctx, acct); err != nil {
			slog.Error("failed to repair registry multiplier", "account_id", acct.AccountID, "error", err)
		} else {
			metrics.ReconcileRepairsTotal.WithLabelValues("registry_multiplier").Inc()
			slog.Info("repaired registry multiplier", "account_id", acct.AccountID,
				"status", string(acct.Status), "multiplier", acct.BudgetMultiplier)
		}
	}

	// Balance snapshot must match the ledger sum.
	ledgerBalance, err := e.store.Balance(ctx, acct.AccountID)
	if err != nil {
		slog.Error("failed to read ledger balance", "account_id", acct.AccountID, "error", err)
	} else if ledgerBalance != acct.Balance {
		if _, err := e.store.RepairBalanceSnapshot(ctx, acct.AccountID); err != nil {
			slog.Error("failed to repair balance snapshot", "account_id", acct.AccountID, "error", err)
		} else {
			metrics.ReconcileRepairsTotal.WithLabelValues("balance_snapshot").Inc()
			slog.Warn("repaired drifted balance snapshot", "account_id", acct.AccountID,
				"snapshot", acct.Balance.String(), "ledger", ledgerBalance.String())
		}
	}

	// Platform state must match the status-derived desired state.
	state, err := e.platform.State(ctx, acct.AccountID)
	if err != nil {
		slog.Warn("platform state unavailable, will retry next sweep",
			"account_id", acct.AccountID, "error", err)
		return
	}

	wantPaused := acct.Status == model.StatusPaused
	wantMultiplier := acct.Status.Multiplier()

	switch {
	case wantPaused && !state.Paused:
		if err := e.platform.PauseAll(ctx, acct.AccountID); err != nil {
			metrics.PlatformCallFailures.Inc()
			slog.Error("reconcile pause failed", "account_id", acct.AccountID, "error", err)
			return
		}
		metrics.ReconcileRepairsTotal.WithLabelValues("pause").Inc()
		slog.Info("reconciled: paused campaigns", "account_id", acct.AccountID)
	case !wantPaused && state.Paused:
		if err := e.platform.ResumeAll(ctx, acct.AccountID); err != nil {
			metrics.PlatformCallFailures.Inc()
			slog.Error("reconcile resume failed", "account_id", acct.AccountID, "error", err)
			return
		}
		metrics.ReconcileRepairsTotal.WithLabelValues("resume").Inc()
		slog.Info("reconciled: resumed campaigns", "account_id", acct.AccountID)
	}

	if !wantPaused && state.Multiplier != wantMultiplier {
		if err := e.platform.SetBudgetMultiplier(ctx, acct.AccountID, wantMultiplier); err != nil {
			metrics.PlatformCallFailures.Inc()
			slog.Error("reconcile multiplier failed", "account_id", acct.AccountID, "error", err)
			return
		}
		metrics.ReconcileRepairsTotal.WithLabelValues("multiplier").Inc()
		slog.Info("reconciled: reset budget multiplier",
			"account_id", acct.AccountID, "multiplier", wantMultiplier)
	}
}
