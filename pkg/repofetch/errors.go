// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for errors.Is comparisons at the API boundary.
var (
	// ErrRepositoryNotFound is returned when the repository or ref does not exist.
	ErrRepositoryNotFound = errors.New("repository or ref not found")

	// ErrUnauthorized is returned when authentication is required, missing, or rejected.
	ErrUnauthorized = errors.New("unauthorized: authentication required or rejected")

	// ErrRateLimited is returned when the remote service signals rate-limit exhaustion.
	ErrRateLimited = errors.New("rate limited: remote budget exhausted")
)

// DownloadError is the umbrella error kind: a human message plus an
// optional inner cause. Any exception escaping the API boundary that does
// not match a more specific kind is wrapped as a DownloadError.
type DownloadError struct {
	Message string
	Cause   error
}

func (e *DownloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Cause
}

// RateLimitError reports that the remote service signaled rate-limit
// exhaustion. Retryable.
type RateLimitError struct {
	RetryAfter float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %.0fs", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// AuthenticationError reports a 401/403 not attributable to rate-limiting.
// Not retryable.
type AuthenticationError struct {
	StatusCode int
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error (status %d)", e.StatusCode)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthorized
}

// RepositoryNotFoundError reports a 404. Not retryable.
type RepositoryNotFoundError struct {
	Repo RepositoryRef
	Ref  string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository %s@%s not found", e.Repo.DisplayName(), e.Ref)
}

func (e *RepositoryNotFoundError) Is(target error) bool {
	return target == ErrRepositoryNotFound
}

// TransportError wraps a network-layer failure (transport, timeout,
// connection). Retryable.
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// httpStatusError classifies a non-2xx HTTP response from a GitHub-style
// service into the taxonomy above. header and body are the response's
// headers and (already-drained) body, used to tell a 403 caused by primary
// rate-limit exhaustion apart from a plain authentication/permission 403 —
// GitHub signals the former as a 403, not a 429.
func httpStatusError(statusCode int, status string, header http.Header, body []byte, repo RepositoryRef, ref string) error {
	switch statusCode {
	case 403:
		if rl, ok := rateLimitFrom403(header, body); ok {
			return rl
		}
		return &AuthenticationError{StatusCode: statusCode}
	case 401:
		return &AuthenticationError{StatusCode: statusCode}
	case 404:
		return &RepositoryNotFoundError{Repo: repo, Ref: ref}
	case 429:
		return &RateLimitError{}
	default:
		return &DownloadError{Message: fmt.Sprintf("unexpected API status %d (%s)", statusCode, status)}
	}
}

// rateLimitFrom403 reports whether a 403 response is a rate-limit signal
// rather than an authentication failure: either the rate-limit headers show
// the budget fully exhausted, or the body names rate limiting explicitly
// (GitHub's primary and secondary/abuse rate limits both respond this way).
func rateLimitFrom403(header http.Header, body []byte) (*RateLimitError, bool) {
	if v, err := strconv.Atoi(header.Get("x-ratelimit-remaining")); err == nil && v == 0 {
		retryAfter := 0.0
		if reset, err := strconv.ParseInt(header.Get("x-ratelimit-reset"), 10, 64); err == nil {
			retryAfter = time.Until(time.Unix(reset, 0)).Seconds()
		}
		return &RateLimitError{RetryAfter: retryAfter}, true
	}
	if retryAfter, err := strconv.ParseFloat(header.Get("retry-after"), 64); err == nil {
		if bytes.Contains(bytes.ToLower(body), []byte("rate limit")) {
			return &RateLimitError{RetryAfter: retryAfter}, true
		}
	}
	if bytes.Contains(bytes.ToLower(body), []byte("rate limit")) {
		return &RateLimitError{}, true
	}
	return nil, false
}

// isRetryable classifies an error: rate-limit and network-layer errors are
// retryable; authentication and not-found errors are not; anything else
// defaults to not-retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	return false
}
