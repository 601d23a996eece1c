// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetryer(maxRetries int) *Retryer {
	cfg := RetryConfig{
		MaxRetries:      maxRetries,
		BaseDelay:       time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
		Jitter:          false,
	}
	return NewRetryer(cfg, zerolog.Nop())
}

// TestRetryer_AlwaysFails checks that with max_retries=R, an always-failing
// retryable operation is invoked exactly R+1 times.
func TestRetryer_AlwaysFails(t *testing.T) {
	r := fastRetryer(3)
	calls := 0
	_, err := r.Do(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, &TransportError{Op: "test", Cause: errors.New("boom")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Fatalf("expected exactly 4 attempts (R+1=4), got %d", calls)
	}
}

// TestRetryer_SucceedsOnThirdAttempt checks the bounded-retry success path.
func TestRetryer_SucceedsOnThirdAttempt(t *testing.T) {
	r := fastRetryer(3)
	calls := 0
	val, err := r.Do(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		if calls < 3 {
			return nil, &TransportError{Op: "test", Cause: errors.New("transient")}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if val != "ok" {
		t.Fatalf("expected value 'ok', got %v", val)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

// TestRetryer_NonRetryable checks that a non-retryable error causes exactly
// one invocation.
func TestRetryer_NonRetryable(t *testing.T) {
	r := fastRetryer(5)
	calls := 0
	_, err := r.Do(context.Background(), func(ctx context.Context, attempt int) (any, error) {
		calls++
		return nil, &AuthenticationError{StatusCode: 401}
	})
	if err == nil {
		t.Fatal("expected error to propagate immediately")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", calls)
	}
}

// TestRetryer_ContextCancelled ensures a cancelled context aborts the sleep
// between retries rather than hanging.
func TestRetryer_ContextCancelled(t *testing.T) {
	r := fastRetryer(3)
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, ExponentialBase: 2, Jitter: false}
	r = NewRetryer(cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Do(ctx, func(ctx context.Context, attempt int) (any, error) {
			calls++
			return nil, &TransportError{Op: "test", Cause: errors.New("boom")}
		})
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retryer did not honor context cancellation")
	}
	if calls == 0 {
		t.Fatal("expected at least one attempt before cancellation")
	}
}
