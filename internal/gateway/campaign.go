package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"adledger/internal/model"
)

// RetryingPlatform wraps a CampaignPlatform with bounded backoff and a
// per-call timeout. A call that still fails after retries is wrapped in
// ErrPlatformControlFailure; the reconciliation sweep re-issues it later.
type RetryingPlatform struct {
	inner    CampaignPlatform
	timeout  time.Duration
	attempts uint64
}

func NewRetryingPlatform(inner CampaignPlatform, timeout time.Duration) *RetryingPlatform {
	return &RetryingPlatform{inner: inner, timeout: timeout, attempts: 3}
}

func (p *RetryingPlatform) do(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(p.attempts-1, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := fn(callCtx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, model.ErrPlatformControlFailure)
	}
	return nil
}

func (p *RetryingPlatform) SetBudgetMultiplier(ctx context.Context, accountID string, multiplier float64) error {
	return p.do(ctx, "set budget multiplier", func(ctx context.Context) error {
		return p.inner.SetBudgetMultiplier(ctx, accountID, multiplier)
	})
}

func (p *RetryingPlatform) PauseAll(ctx context.Context, accountID string) error {
	return p.do(ctx, "pause all campaigns", func(ctx context.Context) error {
		return p.inner.PauseAll(ctx, accountID)
	})
}

func (p *RetryingPlatform) ResumeAll(ctx context.Context, accountID string) error {
	return p.do(ctx, "resume all campaigns", func(ctx context.Context) error {
		return p.inner.ResumeAll(ctx, accountID)
	})
}

func (p *RetryingPlatform) State(ctx context.Context, accountID string) (PlatformState, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.inner.State(ctx, accountID)
}
