package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"adledger/internal/model"
)

// RunExists reports whether the business date has already been settled.
func (s *Store) RunExists(ctx context.Context, accountID, businessDate string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM settlement_runs WHERE account_id = $1 AND business_date = $2)`,
		accountID, businessDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check settlement run: %w", err)
	}
	return exists, nil
}

// SettleDay posts the day's deduction and records the SettlementRun in one
// transaction under the account lock: no deduction without a recorded run,
// and vice versa. A second call for the same (account, date) is a no-op that
// returns applied=false. Zero or negative spend still posts a zero-amount
// entry for auditability.
func (s *Store) SettleDay(ctx context.Context, accountID, businessDate string, spend model.Money) (*model.LedgerEntry, bool, error) {
	if spend < 0 {
		spend = 0
	}

	var entry *model.LedgerEntry
	applied := false
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO settlement_runs (account_id, business_date, spend, settled_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id, business_date) DO NOTHING`,
			accountID, businessDate, int64(spend), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert settlement run: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Already settled by an earlier delivery of the same job.
			existing, err := s.entryByKey(ctx, tx, model.SettlementKey(accountID, businessDate))
			if err != nil {
				return err
			}
			entry = existing
			return nil
		}

		e := &model.LedgerEntry{
			AccountID:      accountID,
			Kind:           model.KindDeduction,
			Amount:         -spend,
			IdempotencyKey: model.SettlementKey(accountID, businessDate),
			Description:    fmt.Sprintf("ad spend for %s", businessDate),
		}
		written, inserted, err := s.appendEntry(ctx, tx, e)
		if err != nil {
			return err
		}
		entry = written
		applied = inserted

		if _, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET balance = $2, updated_at = now() WHERE account_id = $1`,
			accountID, int64(written.BalanceAfter)); err != nil {
			return fmt.Errorf("update balance snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.invalidateAccount(ctx, accountID)
	}
	return entry, applied, nil
}

// ApplyCharge appends a Charge entry, idempotent on the key, and refreshes
// the balance snapshot. Used by the top-up coordinator on success.
func (s *Store) ApplyCharge(ctx context.Context, accountID string, amount model.Money, idempotencyKey, description string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		e := &model.LedgerEntry{
			AccountID:      accountID,
			Kind:           model.KindCharge,
			Amount:         amount,
			IdempotencyKey: idempotencyKey,
			Description:    description,
		}
		written, _, err := s.appendEntry(ctx, tx, e)
		if err != nil {
			return err
		}
		entry = written

		if _, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET balance = $2, updated_at = now() WHERE account_id = $1`,
			accountID, int64(written.BalanceAfter)); err != nil {
			return fmt.Errorf("update balance snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateAccount(ctx, accountID)
	return entry, nil
}

// ApplyAdjustment posts a manual Adjustment entry (support tooling).
func (s *Store) ApplyAdjustment(ctx context.Context, accountID string, amount model.Money, idempotencyKey, description string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := s.withAccountTx(ctx, accountID, func(tx pgx.Tx) error {
		e := &model.LedgerEntry{
			AccountID:      accountID,
			Kind:           model.KindAdjustment,
			Amount:         amount,
			IdempotencyKey: idempotencyKey,
			Description:    description,
		}
		written, _, err := s.appendEntry(ctx, tx, e)
		if err != nil {
			return err
		}
		entry = written
		if _, err := tx.Exec(ctx,
			`UPDATE credit_accounts SET balance = $2, updated_at = now() WHERE account_id = $1`,
			accountID, int64(written.BalanceAfter)); err != nil {
			return fmt.Errorf("update balance snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateAccount(ctx, accountID)
	return entry, nil
}
