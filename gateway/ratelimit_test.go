package gateway

import (
	"context"
	"testing"
	"time"
)

// TestConcurrencyLimiterAllowsBurstUpToConcurrency mirrors the teacher
// pack's ratelimit_test.go style (switchupcb-disgo/wrapper): fire a
// burst of waits and confirm the limiter does not block the first
// `concurrency` of them.
func TestConcurrencyLimiterAllowsBurstUpToConcurrency(t *testing.T) {
	limiter := NewConcurrencyLimiter(2)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("wait %d: unexpected error %v", i, err)
		}
	}
}

func TestConcurrencyLimiterClampsNonPositiveConcurrency(t *testing.T) {
	limiter := NewConcurrencyLimiter(0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestConcurrencyLimiterRespectsCancellation(t *testing.T) {
	limiter := NewConcurrencyLimiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error on first wait: %v", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()

	if err := limiter.Wait(cancelled); err == nil {
		t.Fatalf("expected an error waiting on an already-cancelled context")
	}
}
