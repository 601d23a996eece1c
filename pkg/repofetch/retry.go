// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig parameterizes retry behavior: attempt count, delay curve,
// and jitter.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig returns 3 retries (4 attempts total), 1s base delay,
// 30s cap, base-2 exponential growth, jitter on.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// delay computes d(n) = min(max_delay, base_delay * exponential_base^n),
// then applies a uniform [0.8, 1.2) jitter factor when enabled.
func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(attempt))
	if max := float64(c.MaxDelay); d > max {
		d = max
	}
	if c.Jitter {
		d *= 0.8 + rand.Float64()*0.4
	}
	return time.Duration(d)
}

// Retryer wraps an arbitrary operation with classified-retryable-failure
// re-invocation. It is a generic wrapper over a caller-supplied operation,
// not a transport-level retry policy bolted to one *http.Client, so two call
// sites never silently share one retry budget.
type Retryer struct {
	cfg RetryConfig
	log zerolog.Logger
}

// NewRetryer builds a Retryer. A zero zerolog.Logger is a valid no-op logger.
func NewRetryer(cfg RetryConfig, log zerolog.Logger) *Retryer {
	return &Retryer{cfg: cfg, log: log}
}

// Do invokes op. Attempt 0 is the initial try. A non-retryable error fails
// immediately. A retryable error is retried up to cfg.MaxRetries further
// times (cfg.MaxRetries+1 attempts total); on final exhaustion the most
// recent retryable error is returned.
func (r *Retryer) Do(ctx context.Context, op func(ctx context.Context, attempt int) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		val, err := op(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
		if attempt == r.cfg.MaxRetries {
			r.log.Error().Err(err).Int("attempt", attempt).Msg("retry attempts exhausted")
			break
		}
		d := r.cfg.delay(attempt)
		r.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", d).Msg("retrying after failure")
		if !sleepCtx(ctx, d) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// sleepCtx sleeps for d or returns early (false) if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
