package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"adledger/internal/model"
)

const (
	topUpClaimPrefix  = "topup:"
	topUpClaimTTL     = 48 * time.Hour
	topUpClaimPending = "pending"
)

func topUpClaimKey(accountID, attemptDate string) string {
	return fmt.Sprintf("%s%s:%s", topUpClaimPrefix, accountID, attemptDate)
}

// ClaimTopUp takes the daily top-up claim for (account, date). Exactly one
// caller per day wins the claim; everyone else sees either the cached final
// outcome or nil (attempt still in flight, safe to retry later).
func (s *Store) ClaimTopUp(ctx context.Context, accountID, attemptDate string) (bool, *model.TopUpOutcome, error) {
	key := topUpClaimKey(accountID, attemptDate)
	ok, err := s.rdb.SetNX(ctx, key, topUpClaimPending, topUpClaimTTL).Result()
	if err != nil {
		return false, nil, fmt.Errorf("claim top-up: %w", err)
	}
	if ok {
		return true, nil, nil
	}

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Claim expired or was released between SetNX and Get; next pass retries.
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("read top-up claim: %w", err)
	}
	if string(data) == topUpClaimPending {
		return false, nil, nil
	}
	var outcome model.TopUpOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return false, nil, fmt.Errorf("decode cached top-up outcome: %w", err)
	}
	return false, &outcome, nil
}

// CompleteTopUp records the day's final outcome (Success or Declined) so
// that any later invocation returns it instead of re-charging.
func (s *Store) CompleteTopUp(ctx context.Context, accountID, attemptDate string, outcome *model.TopUpOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, topUpClaimKey(accountID, attemptDate), data, topUpClaimTTL).Err()
}

// ReleaseTopUp drops the claim after a transient gateway failure, so the
// next scheduler pass may retry the same day instead of waiting for
// tomorrow. Declines are not released; they stick for the day.
func (s *Store) ReleaseTopUp(ctx context.Context, accountID, attemptDate string) error {
	return s.rdb.Del(ctx, topUpClaimKey(accountID, attemptDate)).Err()
}
