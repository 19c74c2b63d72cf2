package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"adledger/internal/model"
)

const accountCachePrefix = "account:"

// GetAccount reads the registry record, Redis-first with a Postgres warm-up
// on miss. The cache serves the read API; mutating paths re-read inside
// their own transaction and never trust it.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*model.CreditAccount, error) {
	if data, err := s.rdb.Get(ctx, accountCachePrefix+accountID).Bytes(); err == nil {
		var acct model.CreditAccount
		if err := json.Unmarshal(data, &acct); err == nil {
			return &acct, nil
		}
		// Corrupt cache entry: fall through to the database.
	} else if !errors.Is(err, redis.Nil) {
		slog.Warn("account cache read failed, falling back to postgres", "account_id", accountID, "error", err)
	}

	acct, err := s.getAccount(ctx, s.db, accountID, false)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *Store) getAccount(ctx context.Context, q querier, accountID string, forUpdate bool) (*model.CreditAccount, error) {
	query := `
		SELECT account_id, balance, daily_budget_base, budget_multiplier, estimated_daily_spend,
		       status, failed_charge_count, last_charge_attempt_at, status_entered_at,
		       campaigns_paused_at, timezone, closed, created_at, updated_at
		FROM credit_accounts WHERE account_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var acct model.CreditAccount
	var balance, base, est int64
	var status string
	err := q.QueryRow(ctx, query, accountID).Scan(
		&acct.AccountID, &balance, &base, &acct.BudgetMultiplier, &est,
		&status, &acct.FailedChargeCount, &acct.LastChargeAttemptAt, &acct.StatusEnteredAt,
		&acct.CampaignsPausedAt, &acct.Timezone, &acct.Closed, &acct.CreatedAt, &acct.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrAccountNotFound
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	acct.Balance = model.Money(balance)
	acct.DailyBudgetBase = model.Money(base)
	acct.EstimatedDailySpend = model.Money(est)
	acct.Status = model.Status(status)
	return &acct, nil
}

// CreateAccount provisions the registry record when a customer's first
// campaign goes live.
func (s *Store) CreateAccount(ctx context.Context, acct *model.CreditAccount) error {
	if acct.Status == "" {
		acct.Status = model.StatusActive
	}
	acct.BudgetMultiplier = acct.Status.Multiplier()
	now := time.Now().UTC()
	if acct.StatusEnteredAt.IsZero() {
		acct.StatusEnteredAt = now
	}
	if acct.Timezone == "" {
		acct.Timezone = "UTC"
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO credit_accounts (account_id, balance, daily_budget_base, budget_multiplier,
			estimated_daily_spend, status, failed_charge_count, status_entered_at, timezone, closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, FALSE, $9, $9)
		ON CONFLICT (account_id) DO NOTHING`,
		acct.AccountID, int64(acct.Balance), int64(acct.DailyBudgetBase), acct.BudgetMultiplier,
		int64(acct.EstimatedDailySpend), string(acct.Status), acct.StatusEnteredAt, acct.Timezone, now)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Provisioning events are delivered at-least-once; re-creation is a no-op.
		return nil
	}
	return nil
}

// RetireAccount freezes an account when the customer closes it. The record
// and its ledger are kept; only mutations stop.
func (s *Store) RetireAccount(ctx context.Context, accountID string) error {
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET closed = TRUE, updated_at = now() WHERE account_id = $1`,
			accountID)
		if err != nil {
			return fmt.Errorf("retire account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateAccount(ctx, accountID)
	return nil
}

// ListOpenAccounts returns every non-retired account, straight from Postgres.
// Used by the settlement and reconciliation sweeps.
func (s *Store) ListOpenAccounts(ctx context.Context) ([]model.CreditAccount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT account_id, balance, daily_budget_base, budget_multiplier, estimated_daily_spend,
		       status, failed_charge_count, last_charge_attempt_at, status_entered_at,
		       campaigns_paused_at, timezone, closed, created_at, updated_at
		FROM credit_accounts WHERE closed = FALSE ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.CreditAccount
	for rows.Next() {
		var acct model.CreditAccount
		var balance, base, est int64
		var status string
		err := rows.Scan(
			&acct.AccountID, &balance, &base, &acct.BudgetMultiplier, &est,
			&status, &acct.FailedChargeCount, &acct.LastChargeAttemptAt, &acct.StatusEnteredAt,
			&acct.CampaignsPausedAt, &acct.Timezone, &acct.Closed, &acct.CreatedAt, &acct.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acct.Balance = model.Money(balance)
		acct.DailyBudgetBase = model.Money(base)
		acct.EstimatedDailySpend = model.Money(est)
		acct.Status = model.Status(status)
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateAccountState persists an escalation result: status, multiplier,
// failure counter and the related timestamps, all under the account lock.
func (s *Store) UpdateAccountState(ctx context.Context, acct *model.CreditAccount) error {
	err := s.withAccountTx(ctx, acct.AccountID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE credit_accounts
			SET status = $2, budget_multiplier = $3, failed_charge_count = $4,
			    last_charge_attempt_at = $5, status_entered_at = $6, campaigns_paused_at = $7,
			    updated_at = now()
			WHERE account_id = $1 AND closed = FALSE`,
			acct.AccountID, string(acct.Status), acct.BudgetMultiplier, acct.FailedChargeCount,
			acct.LastChargeAttemptAt, acct.StatusEnteredAt, acct.CampaignsPausedAt)
		if err != nil {
			return fmt.Errorf("update account state: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateAccount(ctx, acct.AccountID)
	return nil
}

// UpdateEstimate recomputes the trailing daily-spend average from the ledger
// and persists it with a fresh balance snapshot.
func (s *Store) UpdateEstimate(ctx context.Context, accountID string, windowDays int) (model.Money, error) {
	var est model.Money
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		var err error
		est, err = s.averageDailyDeduction(ctx, tx, accountID, windowDays)
		if err != nil {
			return err
		}
		var balance int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
			accountID).Scan(&balance); err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE credit_accounts SET estimated_daily_spend = $2, balance = $3, updated_at = now()
			WHERE account_id = $1`,
			accountID, int64(est), balance)
		if err != nil {
			return fmt.Errorf("update estimate: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.invalidateAccount(ctx, accountID)
	return est, nil
}

// RepairBalanceSnapshot rewrites the registry balance from the ledger sum.
// Used by the reconciliation sweep when it detects drift.
func (s *Store) RepairBalanceSnapshot(ctx context.Context, accountID string) (model.Money, error) {
	var balance int64
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
			accountID).Scan(&balance); err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET balance = $2, updated_at = now() WHERE account_id = $1`,
			accountID, balance); err != nil {
			return fmt.Errorf("repair balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.invalidateAccount(ctx, accountID)
	return model.Money(balance), nil
}

// accountCacheTTL bounds how long a stale cache entry can survive a lost or
// badly interleaved invalidation. Write paths still invalidate eagerly after
// commit; the TTL is the backstop, not the consistency mechanism.
const accountCacheTTL = 5 * time.Minute

func (s *Store) cacheAccount(ctx context.Context, acct *model.CreditAccount) {
	data, err := json.Marshal(acct)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, accountCachePrefix+acct.AccountID, data, accountCacheTTL).Err(); err != nil {
		slog.Warn("failed to cache account", "account_id", acct.AccountID, "error", err)
	}
}

// invalidateAccount drops the cache entry. Callers run it after the
// transaction commits: a DEL issued before commit lets a concurrent read
// re-cache the pre-commit row.
func (s *Store) invalidateAccount(ctx context.Context, accountID string) {
	if err := s.rdb.Del(ctx, accountCachePrefix+accountID).Err(); err != nil {
		slog.Warn("failed to invalidate account cache", "account_id", accountID, "error", err)
	}
}
