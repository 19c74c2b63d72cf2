package service

import (
	"context"
	"errors"
	"testing"

	"adledger/internal/model"
)

func TestReconcile_ReissuesPauseForPausedAccount(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusPaused, 100, 5000)
	// The pause call was lost; the platform still runs campaigns.
	env.platform.state.Paused = false

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if env.platform.pauseCalls != 1 {
		t.Errorf("pause calls = %d, want 1", env.platform.pauseCalls)
	}
}

func TestReconcile_ResumesWronglyPausedAccount(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusActive, 100000, 5000)
	env.platform.state.Paused = true

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if env.platform.resumeCalls != 1 {
		t.Errorf("resume calls = %d, want 1", env.platform.resumeCalls)
	}
}

func TestReconcile_ResetsDriftedPlatformMultiplier(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusBudgetReduced, 100, 5000)
	env.platform.state.Multiplier = 1.0

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if env.platform.setCalls != 1 || env.platform.lastMult != 0.5 {
		t.Errorf("multiplier call: calls=%d last=%v, want 1 call at 0.5",
			env.platform.setCalls, env.platform.lastMult)
	}
}

func TestReconcile_RepairsRegistryMultiplier(t *testing.T) {
	env := newTestEnv()
	acct := env.seedAccount("acct-1", model.StatusBudgetReduced, 100, 5000)
	acct.BudgetMultiplier = 1.0 // drifted from what budget_reduced dictates
	env.platform.state.Multiplier = 0.5

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, _ := env.store.GetAccount(context.Background(), "acct-1")
	if got.BudgetMultiplier != 0.5 {
		t.Errorf("registry multiplier = %v, want 0.5", got.BudgetMultiplier)
	}
}

func TestReconcile_RepairsBalanceSnapshot(t *testing.T) {
	env := newTestEnv()
	acct := env.seedAccount("acct-1", model.StatusActive, 30000, 5000)
	env.store.mu.Lock()
	acct.Balance = 99999 // snapshot drifted from the ledger sum
	env.store.mu.Unlock()

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, _ := env.store.GetAccount(context.Background(), "acct-1")
	if got.Balance != 30000 {
		t.Errorf("balance snapshot = %d, want 30000", got.Balance)
	}
}

func TestReconcile_SkipsAccountWhenPlatformStateUnavailable(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusPaused, 100, 5000)
	env.platform.state.Paused = false
	env.platform.stateErr = errors.New("platform timeout")

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if env.platform.pauseCalls != 0 {
		t.Errorf("pause calls = %d, want 0 when state is unreadable", env.platform.pauseCalls)
	}
}

func TestReconcile_HealthyAccountUntouched(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusActive, 30000, 5000)

	if err := env.engine.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n := env.platform.pauseCalls + env.platform.resumeCalls + env.platform.setCalls; n != 0 {
		t.Errorf("platform calls = %d, want 0 for converged state", n)
	}
	if env.store.stateWrites["acct-1"] != 0 {
		t.Errorf("state writes = %d, want 0 for converged state", env.store.stateWrites["acct-1"])
	}
}

func TestReconcile_Cancelled(t *testing.T) {
	env := newTestEnv()
	env.seedAccount("acct-1", model.StatusActive, 30000, 5000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := env.engine.Reconcile(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
