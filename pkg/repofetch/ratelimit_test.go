// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"
)

func headersWith(limit, remaining, used int, resetUnix int64) http.Header {
	h := http.Header{}
	h.Set("x-ratelimit-limit", strconv.Itoa(limit))
	h.Set("x-ratelimit-remaining", strconv.Itoa(remaining))
	h.Set("x-ratelimit-used", strconv.Itoa(used))
	h.Set("x-ratelimit-reset", strconv.FormatInt(resetUnix, 10))
	return h
}

// TestRateLimiter_IsExhausted_P6 checks P6: is_exhausted iff remaining<=10.
func TestRateLimiter_IsExhausted_P6(t *testing.T) {
	cases := []struct {
		remaining int
		want      bool
	}{
		{0, true}, {10, true}, {11, false}, {5000, false},
	}
	for _, c := range cases {
		info := RateLimitInfo{Remaining: c.remaining}
		if got := info.IsExhausted(); got != c.want {
			t.Fatalf("remaining=%d: expected is_exhausted=%v, got %v", c.remaining, c.want, got)
		}
	}
}

// TestRateLimiter_ConsecutiveExhaustions verifies the counter resets on a
// non-exhausted observation and increments on an exhausted one.
func TestRateLimiter_ConsecutiveExhaustions(t *testing.T) {
	l := NewRateLimiter(10*time.Millisecond, 100*time.Millisecond, true)

	l.UpdateFromHeaders(headersWith(5000, 2, 4998, time.Now().Add(time.Minute).Unix()))
	l.mu.Lock()
	first := l.consecutiveExhaustions
	l.mu.Unlock()
	if first != 1 {
		t.Fatalf("expected consecutiveExhaustions=1 after one exhausted observation, got %d", first)
	}

	l.UpdateFromHeaders(headersWith(5000, 2, 4998, time.Now().Add(time.Minute).Unix()))
	l.mu.Lock()
	second := l.consecutiveExhaustions
	l.mu.Unlock()
	if second != 2 {
		t.Fatalf("expected consecutiveExhaustions=2 after two exhausted observations, got %d", second)
	}

	l.UpdateFromHeaders(headersWith(5000, 4000, 1000, time.Now().Add(time.Minute).Unix()))
	l.mu.Lock()
	reset := l.consecutiveExhaustions
	l.mu.Unlock()
	if reset != 0 {
		t.Fatalf("expected consecutiveExhaustions reset to 0 after non-exhausted observation, got %d", reset)
	}
}

// TestRateLimiter_Acquire_PrimaryWait checks the reset-wait suspension path
// actually waits roughly the remaining duration.
func TestRateLimiter_Acquire_PrimaryWait(t *testing.T) {
	l := NewRateLimiter(time.Millisecond, 10*time.Millisecond, false)
	// Reset two seconds out; x-ratelimit-reset has one-second epoch
	// resolution, so truncation can shave up to a second off this, but
	// Acquire must still block for a meaningful fraction of it.
	l.UpdateFromHeaders(headersWith(60, 1, 59, time.Now().Add(2*time.Second).Unix()))

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 800*time.Millisecond {
		t.Fatalf("expected Acquire to block for close to the reset window, elapsed only %v", elapsed)
	}
}

// TestRateLimiter_Acquire_ContextCancelled ensures a cancelled context
// aborts the primary wait instead of blocking forever.
func TestRateLimiter_Acquire_ContextCancelled(t *testing.T) {
	l := NewRateLimiter(time.Millisecond, 10*time.Millisecond, false)
	l.UpdateFromHeaders(headersWith(60, 1, 59, time.Now().Add(time.Hour).Unix()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	if err == nil {
		t.Fatal("expected context-cancellation error from Acquire")
	}
}
