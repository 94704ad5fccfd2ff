package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"campaign-signal-alerts/internal/config"
)

// QueryGuard applies one uniform policy to every warehouse query: a
// per-attempt timeout, bounded exponential-backoff retries, and a circuit
// breaker that sheds load once the warehouse is clearly unhealthy.
type QueryGuard struct {
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	breaker     *gobreaker.CircuitBreaker
}

// NewQueryGuard builds a guard from query configuration.
func NewQueryGuard(cfg config.QueryConfig) *QueryGuard {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "warehouse",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})

	return &QueryGuard{
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		breaker:     breaker,
	}
}

// Do runs fn under the guard. Context cancellation is never retried; an open
// breaker fails immediately without touching the pool.
func (g *QueryGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}

	attempts := g.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			attemptCtx := ctx
			var cancel context.CancelFunc
			if g.timeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
				defer cancel()
			}
			return nil, fn(attemptCtx)
		})
		if err == nil {
			return nil
		}

		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return lastErr
}

func (g *QueryGuard) backoff(attempt int) time.Duration {
	delay := g.baseDelay
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if g.maxDelay > 0 && delay > g.maxDelay {
		delay = g.maxDelay
	}
	return delay
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}
