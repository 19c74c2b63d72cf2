package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"adledger/internal/gateway"
	"adledger/internal/model"
)

// In-memory fakes mirroring the Store and collaborator contracts.

type fakeStore struct {
	mu          sync.Mutex
	accounts    map[string]*model.CreditAccount
	entries     []*model.LedgerEntry
	byKey       map[string]*model.LedgerEntry
	runs        map[string]bool
	claims      map[string]string
	stateWrites map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:    map[string]*model.CreditAccount{},
		byKey:       map[string]*model.LedgerEntry{},
		runs:        map[string]bool{},
		claims:      map[string]string{},
		stateWrites: map[string]int{},
	}
}

func (s *fakeStore) GetAccount(ctx context.Context, id string) (*model.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *fakeStore) CreateAccount(ctx context.Context, acct *model.CreditAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.AccountID]; ok {
		return nil
	}
	cp := *acct
	cp.BudgetMultiplier = cp.Status.Multiplier()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.accounts[acct.AccountID] = &cp
	return nil
}

func (s *fakeStore) RetireAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return model.ErrAccountNotFound
	}
	acct.Closed = true
	return nil
}

func (s *fakeStore) ListOpenAccounts(ctx context.Context) ([]model.CreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CreditAccount
	for _, acct := range s.accounts {
		if !acct.Closed {
			out = append(out, *acct)
		}
	}
	return out, nil
}

func (s *fakeStore) Balance(ctx context.Context, id string) (model.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(id), nil
}

func (s *fakeStore) balanceLocked(id string) model.Money {
	var sum model.Money
	for _, e := range s.entries {
		if e.AccountID == id {
			sum += e.Amount
		}
	}
	return sum
}

func (s *fakeStore) Entries(ctx context.Context, id, cursor string, limit int) ([]model.LedgerEntry, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if e.AccountID == id {
			out = append(out, *e)
		}
	}
	return out, "", nil
}

func (s *fakeStore) appendLocked(e *model.LedgerEntry) (*model.LedgerEntry, bool) {
	if existing, ok := s.byKey[e.IdempotencyKey]; ok {
		return existing, false
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.BalanceAfter = s.balanceLocked(e.AccountID) + e.Amount
	s.entries = append(s.entries, e)
	s.byKey[e.IdempotencyKey] = e
	if acct, ok := s.accounts[e.AccountID]; ok {
		acct.Balance = e.BalanceAfter
	}
	return e, true
}

func (s *fakeStore) RunExists(ctx context.Context, id, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id+"|"+date], nil
}

func (s *fakeStore) SettleDay(ctx context.Context, id, date string, spend model.Money) (*model.LedgerEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if spend < 0 {
		spend = 0
	}
	if s.runs[id+"|"+date] {
		return s.byKey[model.SettlementKey(id, date)], false, nil
	}
	s.runs[id+"|"+date] = true
	e, applied := s.appendLocked(&model.LedgerEntry{
		AccountID:      id,
		Kind:           model.KindDeduction,
		Amount:         -spend,
		IdempotencyKey: model.SettlementKey(id, date),
	})
	return e, applied, nil
}

func (s *fakeStore) ApplyCharge(ctx context.Context, id string, amount model.Money, key, desc string) (*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.appendLocked(&model.LedgerEntry{
		AccountID:      id,
		Kind:           model.KindCharge,
		Amount:         amount,
		IdempotencyKey: key,
		Description:    desc,
	})
	return e, nil
}

func (s *fakeStore) UpdateAccountState(ctx context.Context, acct *model.CreditAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[acct.AccountID]
	if !ok || stored.Closed {
		return model.ErrInvalidStateTransition
	}
	cp := *acct
	cp.Balance = stored.Balance
	s.accounts[acct.AccountID] = &cp
	s.stateWrites[acct.AccountID]++
	return nil
}

func (s *fakeStore) UpdateEstimate(ctx context.Context, id string, windowDays int) (model.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	var total model.Money
	for _, e := range s.entries {
		if e.AccountID == id && e.Kind == model.KindDeduction && e.CreatedAt.After(cutoff) {
			total += -e.Amount
		}
	}
	est := total / model.Money(windowDays)
	if est < 0 {
		est = 0
	}
	if acct, ok := s.accounts[id]; ok {
		acct.EstimatedDailySpend = est
		acct.Balance = s.balanceLocked(id)
	}
	return est, nil
}

func (s *fakeStore) RepairBalanceSnapshot(ctx context.Context, id string) (model.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balanceLocked(id)
	if acct, ok := s.accounts[id]; ok {
		acct.Balance = bal
	}
	return bal, nil
}

func (s *fakeStore) ClaimTopUp(ctx context.Context, id, date string) (bool, *model.TopUpOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id + "|" + date
	val, ok := s.claims[key]
	if !ok {
		s.claims[key] = "pending"
		return true, nil, nil
	}
	if val == "pending" {
		return false, nil, nil
	}
	var outcome model.TopUpOutcome
	if err := json.Unmarshal([]byte(val), &outcome); err != nil {
		return false, nil, err
	}
	return false, &outcome, nil
}

func (s *fakeStore) CompleteTopUp(ctx context.Context, id, date string, outcome *model.TopUpOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	s.claims[id+"|"+date] = string(data)
	return nil
}

func (s *fakeStore) ReleaseTopUp(ctx context.Context, id, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, id+"|"+date)
	return nil
}

func (s *fakeStore) entryCount(id string, kind model.EntryKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.AccountID == id && e.Kind == kind {
			n++
		}
	}
	return n
}

type fakeSpend struct {
	mu     sync.Mutex
	amount model.Money
	err    error
	calls  int
}

func (f *fakeSpend) ActualSpend(ctx context.Context, id, date string) (model.Money, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.amount, nil
}

type fakePayments struct {
	mu         sync.Mutex
	result     gateway.ChargeResult
	err        error
	delay      time.Duration
	calls      int
	lastAmount model.Money
}

func (f *fakePayments) Charge(ctx context.Context, id string, amount model.Money, key string) (gateway.ChargeResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastAmount = amount
	delay, result, err := f.delay, f.result, f.err
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return gateway.ChargeResult{}, err
	}
	return result, nil
}

func (f *fakePayments) DefaultPaymentMethod(ctx context.Context, id string) (string, error) {
	return "pm_default", nil
}

type fakePlatform struct {
	mu          sync.Mutex
	state       gateway.PlatformState
	stateErr    error
	pauseCalls  int
	resumeCalls int
	setCalls    int
	lastMult    float64
}

func (f *fakePlatform) SetBudgetMultiplier(ctx context.Context, id string, m float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.lastMult = m
	f.state.Multiplier = m
	return nil
}

func (f *fakePlatform) PauseAll(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	f.state.Paused = true
	return nil
}

func (f *fakePlatform) ResumeAll(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	f.state.Paused = false
	return nil
}

func (f *fakePlatform) State(ctx context.Context, id string) (gateway.PlatformState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return gateway.PlatformState{}, f.stateErr
	}
	return f.state, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, id, event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) has(event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeUsage struct {
	mu      sync.Mutex
	reports int
}

func (f *fakeUsage) Report(ctx context.Context, id string, amount model.Money, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports++
	return nil
}

type testEnv struct {
	engine   *Engine
	store    *fakeStore
	spend    *fakeSpend
	payments *fakePayments
	platform *fakePlatform
	notifier *fakeNotifier
	usage    *fakeUsage
	now      time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		spend:    &fakeSpend{},
		payments: &fakePayments{},
		platform: &fakePlatform{state: gateway.PlatformState{Multiplier: 1.0}},
		notifier: &fakeNotifier{},
		usage:    &fakeUsage{},
		now:      time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	env.engine = NewEngine(env.store, env.spend, env.payments, env.platform, env.notifier, env.usage, Params{
		LowBalanceDays:     2.0,
		TopUpDays:          7,
		MinCharge:          2500,
		GraceWindow:        24 * time.Hour,
		SettlementHour:     6,
		SpendFetchAttempts: 1,
		EstimateWindowDays: 7,
		GatewayTimeout:     time.Second,
	})
	env.engine.now = func() time.Time { return env.now }
	return env
}

// seedAccount creates an account with the given status and seeds its balance
// through an adjustment entry so the ledger invariant holds.
func (env *testEnv) seedAccount(id string, status model.Status, balance, estimate model.Money) *model.CreditAccount {
	acct := &model.CreditAccount{
		AccountID:           id,
		Status:              status,
		BudgetMultiplier:    status.Multiplier(),
		EstimatedDailySpend: estimate,
		StatusEnteredAt:     env.now.Add(-time.Hour),
		CreatedAt:           env.now,
		Timezone:            "UTC",
	}
	env.store.mu.Lock()
	env.store.accounts[id] = acct
	if balance != 0 {
		env.store.appendLocked(&model.LedgerEntry{
			AccountID:      id,
			Kind:           model.KindAdjustment,
			Amount:         balance,
			IdempotencyKey: fmt.Sprintf("%s:seed", id),
			CreatedAt:      env.now.Add(-48 * time.Hour),
		})
	}
	env.store.mu.Unlock()
	return acct
}
