package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"campaign-signal-alerts/internal/config"
)

func testGuard(maxAttempts int, maxFailures uint32) *QueryGuard {
	return NewQueryGuard(config.QueryConfig{
		Timeout:            time.Second,
		MaxAttempts:        maxAttempts,
		BaseDelay:          time.Millisecond,
		MaxDelay:           5 * time.Millisecond,
		BreakerMaxFailures: maxFailures,
		BreakerOpenTimeout: time.Minute,
	})
}

func TestGuardRetriesTransientError(t *testing.T) {
	guard := testGuard(3, 100)

	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestGuardExhaustsAttempts(t *testing.T) {
	guard := testGuard(2, 100)

	calls := 0
	wantErr := errors.New("still broken")
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("last error must surface, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestGuardDoesNotRetryCancellation(t *testing.T) {
	guard := testGuard(3, 100)

	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancellation must not be retried, got %d calls", calls)
	}
}

func TestGuardBreakerOpens(t *testing.T) {
	guard := testGuard(1, 2)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = guard.Do(context.Background(), func(ctx context.Context) error {
			return boom
		})
	}

	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("breaker should be open, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("open breaker must not touch the warehouse, got %d calls", calls)
	}
}

func TestGuardNilPassthrough(t *testing.T) {
	var guard *QueryGuard
	called := false
	if err := guard.Do(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !called {
		t.Fatal("fn must run without a guard")
	}
}
