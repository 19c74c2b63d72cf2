package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"adledger/internal/model"
)

func newCacheStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	// No database: these tests exercise the Redis-side paths only.
	return NewStore(nil, client), mr
}

func TestGetAccount_CacheHitServesWithoutDatabase(t *testing.T) {
	store, mr := newCacheStore(t)
	want := &model.CreditAccount{
		AccountID:           "acct-1",
		Balance:             39000,
		Status:              model.StatusActive,
		BudgetMultiplier:    1.0,
		EstimatedDailySpend: 5000,
		Timezone:            "UTC",
	}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	mr.Set(accountCachePrefix+"acct-1", string(data))

	got, err := store.GetAccount(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if got.AccountID != want.AccountID || got.Balance != want.Balance || got.Status != want.Status {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCacheAccount_SetsBackstopTTL(t *testing.T) {
	store, mr := newCacheStore(t)
	store.cacheAccount(context.Background(), &model.CreditAccount{
		AccountID: "acct-1",
		Status:    model.StatusActive,
	})

	key := accountCachePrefix + "acct-1"
	if !mr.Exists(key) {
		t.Fatal("account not cached")
	}
	// A lost invalidation must not pin stale state forever.
	if ttl := mr.TTL(key); ttl <= 0 || ttl > accountCacheTTL {
		t.Errorf("cache TTL = %v, want in (0, %v]", ttl, accountCacheTTL)
	}

	mr.FastForward(accountCacheTTL + time.Second)
	if mr.Exists(key) {
		t.Error("cache entry survived its TTL")
	}
}

func TestInvalidateAccount_DropsCacheEntry(t *testing.T) {
	store, mr := newCacheStore(t)
	store.cacheAccount(context.Background(), &model.CreditAccount{
		AccountID: "acct-1",
		Status:    model.StatusWarning,
	})
	store.invalidateAccount(context.Background(), "acct-1")

	if mr.Exists(accountCachePrefix + "acct-1") {
		t.Error("cache entry not dropped")
	}
}
