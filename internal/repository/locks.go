package repository

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
)

// lockKey maps an account ID onto the 64-bit advisory lock space.
func lockKey(accountID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(accountID))
	return int64(h.Sum64())
}

// withAccountTx runs fn inside a transaction holding the account's advisory
// lock. pg_advisory_xact_lock is released with the transaction, so a crashed
// process can never strand the lock. This is the per-account critical section:
// cross-account work proceeds fully in parallel.
func (s *Store) withAccountTx(ctx context.Context, accountID string, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(accountID)); err != nil {
		return fmt.Errorf("acquire account lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
