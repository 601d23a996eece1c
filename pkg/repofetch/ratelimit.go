// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter guards outbound calls against a GitHub-style x-ratelimit-*
// budget, combining a primary reset-wait with adaptive self-imposed pacing.
// All state mutation goes through mu.
type RateLimiter struct {
	mu sync.Mutex

	info                   RateLimitInfo
	lastRequestWallTime    time.Time
	consecutiveExhaustions int

	defaultDelay time.Duration
	maxDelay     time.Duration
	adaptive     bool

	pacer *rate.Limiter
}

// NewRateLimiter builds a RateLimiter. defaultDelay/maxDelay bound the
// adaptive inter-call spacing; adaptive=false disables step 2 of Acquire
// entirely (only the primary reset-wait applies).
func NewRateLimiter(defaultDelay, maxDelay time.Duration, adaptive bool) *RateLimiter {
	return &RateLimiter{
		defaultDelay: defaultDelay,
		maxDelay:     maxDelay,
		adaptive:     adaptive,
		pacer:        rate.NewLimiter(rate.Inf, 1),
	}
}

// UpdateFromHeaders ingests the GitHub-convention rate-limit headers from a
// response. It tracks consecutive exhaustions across calls, which drives
// the adaptive pacing in Acquire.
func (l *RateLimiter) UpdateFromHeaders(h http.Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, err := strconv.Atoi(h.Get("x-ratelimit-limit")); err == nil {
		l.info.Limit = v
	}
	if v, err := strconv.Atoi(h.Get("x-ratelimit-remaining")); err == nil {
		l.info.Remaining = v
	}
	if v, err := strconv.Atoi(h.Get("x-ratelimit-used")); err == nil {
		l.info.Used = v
	}
	if v, err := strconv.ParseInt(h.Get("x-ratelimit-reset"), 10, 64); err == nil {
		l.info.ResetTime = time.Unix(v, 0)
	}

	if l.info.IsExhausted() {
		l.consecutiveExhaustions++
		if l.adaptive {
			l.pacer.SetLimit(rate.Every(l.adaptiveDelayLocked()))
		}
	} else {
		l.consecutiveExhaustions = 0
		if l.adaptive {
			l.pacer.SetLimit(rate.Inf)
		}
	}
}

// Info returns a snapshot of the current rate-limit state.
func (l *RateLimiter) Info() RateLimitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Acquire suspends the caller until it is safe to make another outbound
// call — first honoring a primary reset-wait if exhausted, then the
// adaptive pacer — and records the call's wall-clock time. Call immediately
// before every outbound call.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	exhausted := l.info.IsExhausted()
	resetWait := l.info.ResetInSeconds()
	adaptive := l.adaptive
	l.mu.Unlock()

	if exhausted && resetWait > 0 {
		if !sleepCtx(ctx, time.Duration(resetWait*float64(time.Second))) {
			return ctx.Err()
		}
	} else if adaptive {
		// pacer's limit is kept in lock-step with the adaptive delay by
		// UpdateFromHeaders, and serializes concurrent callers fairly; it
		// does not by itself account for time already spent since the
		// last actual request, so that is enforced explicitly below.
		if err := l.pacer.Wait(ctx); err != nil {
			return err
		}

		l.mu.Lock()
		delay := l.adaptiveDelayLocked()
		wait := delay - time.Since(l.lastRequestWallTime)
		l.mu.Unlock()
		if wait > 0 {
			if !sleepCtx(ctx, wait) {
				return ctx.Err()
			}
		}
	}

	l.mu.Lock()
	l.lastRequestWallTime = time.Now()
	l.mu.Unlock()
	return nil
}

// adaptiveDelayLocked computes delay = default_delay * (1 + consecutive
// exhaustions), clamped to max_delay, with +-10% jitter. Caller holds mu.
func (l *RateLimiter) adaptiveDelayLocked() time.Duration {
	d := l.defaultDelay * time.Duration(1+l.consecutiveExhaustions)
	if d > l.maxDelay {
		d = l.maxDelay
	}
	jitterFactor := 0.9 + rand.Float64()*0.2 // +-10%
	return time.Duration(float64(d) * jitterFactor)
}
