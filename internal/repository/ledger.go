package repository

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"adledger/internal/model"
)

// appendEntry writes one ledger row, idempotent on idempotency_key: a
// conflicting insert is not an error but "already applied", and the existing
// row is returned. Must run under the account's advisory lock so that
// balance_after snapshots stay consistent.
func (s *Store) appendEntry(ctx context.Context, q querier, e *model.LedgerEntry) (*model.LedgerEntry, bool, error) {
	if e.EntryID == "" {
		e.EntryID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var balance int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		e.AccountID).Scan(&balance)
	if err != nil {
		return nil, false, fmt.Errorf("sum ledger: %w", err)
	}
	e.BalanceAfter = model.Money(balance) + e.Amount

	tag, err := q.Exec(ctx, `
		INSERT INTO ledger_entries (entry_id, account_id, kind, amount, balance_after, idempotency_key, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		e.EntryID, e.AccountID, string(e.Kind), int64(e.Amount), int64(e.BalanceAfter),
		e.IdempotencyKey, e.Description, e.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert ledger entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.entryByKey(ctx, q, e.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return e, true, nil
}

func (s *Store) entryByKey(ctx context.Context, q querier, idempotencyKey string) (*model.LedgerEntry, error) {
	row := q.QueryRow(ctx, `
		SELECT entry_id, account_id, kind, amount, balance_after, idempotency_key, description, created_at
		FROM ledger_entries WHERE idempotency_key = $1`, idempotencyKey)
	return scanEntry(row)
}

// Balance returns the signed sum of all ledger entries for the account.
// This is the transactional truth, not the cached registry snapshot.
func (s *Store) Balance(ctx context.Context, accountID string) (model.Money, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return model.Money(balance), nil
}

// Entries lists ledger rows for audit/export: ordered by (created_at,
// entry_id), finite, and restartable from the returned cursor.
func (s *Store) Entries(ctx context.Context, accountID, cursor string, limit int) ([]model.LedgerEntry, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	after, afterID, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.db.Query(ctx, `
		SELECT entry_id, account_id, kind, amount, balance_after, idempotency_key, description, created_at
		FROM ledger_entries
		WHERE account_id = $1 AND (created_at, entry_id) > ($2, $3)
		ORDER BY created_at, entry_id
		LIMIT $4`,
		accountID, after, afterID, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, "", err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = encodeCursor(last.CreatedAt, last.EntryID)
	}
	return entries, next, nil
}

// averageDailyDeduction computes the trailing average of settlement
// deductions over the window, in positive cents. Days without entries count
// as zero spend.
func (s *Store) averageDailyDeduction(ctx context.Context, q querier, accountID string, windowDays int) (model.Money, error) {
	var total int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(-amount), 0)
		FROM ledger_entries
		WHERE account_id = $1 AND kind = $2 AND created_at >= now() - make_interval(days => $3)`,
		accountID, string(model.KindDeduction), windowDays).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("average deductions: %w", err)
	}
	avg := int64(math.Round(float64(total) / float64(windowDays)))
	if avg < 0 {
		avg = 0
	}
	return model.Money(avg), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var kind string
	var amount, after int64
	err := row.Scan(&e.EntryID, &e.AccountID, &kind, &amount, &after, &e.IdempotencyKey, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	e.Kind = model.EntryKind(kind)
	e.Amount = model.Money(amount)
	e.BalanceAfter = model.Money(after)
	return &e, nil
}

func encodeCursor(createdAt time.Time, entryID string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "," + entryID
}

func decodeCursor(cursor string) (time.Time, string, error) {
	if cursor == "" {
		return time.Time{}, "", nil
	}
	ts, id, ok := strings.Cut(cursor, ",")
	if !ok {
		return time.Time{}, "", fmt.Errorf("malformed cursor %q: %w", cursor, model.ErrInvalidCursor)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor %q: %v: %w", cursor, err, model.ErrInvalidCursor)
	}
	return t, id, nil
}
