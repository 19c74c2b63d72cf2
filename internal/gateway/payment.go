package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"adledger/internal/model"
)

// BreakerGateway wraps a PaymentGateway in a circuit breaker so that a
// misbehaving payment provider fails fast instead of tying up settlement
// sweeps. An open breaker is reported as gateway-unavailable, which the
// escalation machine treats as a transient failure.
type BreakerGateway struct {
	inner   PaymentGateway
	breaker *gobreaker.CircuitBreaker[ChargeResult]
	timeout time.Duration
}

func NewBreakerGateway(inner PaymentGateway, timeout time.Duration) *BreakerGateway {
	cb := gobreaker.NewCircuitBreaker[ChargeResult](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &BreakerGateway{inner: inner, breaker: cb, timeout: timeout}
}

func (g *BreakerGateway) Charge(ctx context.Context, accountID string, amount model.Money, idempotencyKey string) (ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.breaker.Execute(func() (ChargeResult, error) {
		return g.inner.Charge(ctx, accountID, amount, idempotencyKey)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ChargeResult{}, fmt.Errorf("circuit open: %w", model.ErrGatewayUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ChargeResult{}, fmt.Errorf("charge timed out: %w", model.ErrGatewayUnavailable)
		}
		return ChargeResult{}, fmt.Errorf("%v: %w", err, model.ErrGatewayUnavailable)
	}
	return res, nil
}

func (g *BreakerGateway) DefaultPaymentMethod(ctx context.Context, accountID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.inner.DefaultPaymentMethod(ctx, accountID)
}
