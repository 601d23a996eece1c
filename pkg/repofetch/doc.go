// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package repofetch provides a Go library for downloading filtered subsets of
a GitHub-style repository tree, with rate-limit-aware pacing, retry, and a
cooperative pause/resume/cancel control plane.

# Features

  - Conjunctive filtering: include/exclude globs, extension allow/deny lists,
    size bounds, target-path prefixes, hidden-path exclusion
  - Rate-limit awareness: x-ratelimit-* headers drive both a primary
    reset-wait and adaptive self-imposed pacing
  - Retry with backoff: classified retryable failures are retried with
    exponential backoff and jitter; authentication and not-found failures
    fail immediately
  - Bounded concurrency: per-file downloads run under a weighted semaphore
    sized to the request's MaxConcurrent
  - Pause / resume / cancel: a running download can be suspended and later
    resumed, or cancelled outright, from another goroutine
  - Manifest caching: repeated requests against the same repository/ref
    within the cache TTL skip the live tree fetch entirely

# Quick Start

	api := repofetch.NewHTTPAPIService(token, limiter, retryer)
	sink := repofetch.NewFilesystemSink()
	cache := repofetch.NewManifestCache(repofetch.DefaultManifestCacheTTL)
	orch := repofetch.NewOrchestrator(api, sink, cache, limiter, retryer, logger)

	req := repofetch.DefaultDownloadRequest()
	req.Repo = repofetch.RepositoryRef{Owner: "octocat", Name: "hello-world"}
	req.Ref = repofetch.GitRef{Name: "main", Kind: repofetch.RefBranch}
	req.Destination = "./hello-world"
	req.Filters.IncludeGlobs = []string{"*.go", "*.md"}

	result, err := orch.Execute(ctx, req)

# Dry Run

Set DownloadRequest.DryRun to compute the matched-file set and totals
without writing anything to disk; matched files already present at their
destination (when OverwriteExisting is false) are listed in SkippedFiles. A dry run that matches zero files still
completes successfully; it is not treated as an error.

# Pause, Resume, Cancel

	go orch.Execute(ctx, req)
	...
	orch.Pause()
	...
	orch.Resume()
	...
	orch.Cancel() // cooperative; in-flight files finish or abort promptly

CurrentProgress, CurrentStatus, and CurrentResult return point-in-time
snapshots safe to poll from any goroutine while a run is in progress; all
three report nothing once the run has torn down. Cancel, Pause, and Resume
each return the in-flight result (or nil if there is none) for a caller
that needs it synchronously rather than polling.

# Rate Limiting

RateLimiter.UpdateFromHeaders should be called after every response that
carries x-ratelimit-* headers (the bundled httpAPIService does this
automatically). Acquire must be called before every outbound request; it
blocks on the primary reset-wait when the budget is exhausted, or paces
calls adaptively otherwise.

# Error Handling

Errors returned from the API Service are classified into DownloadError,
RateLimitError, AuthenticationError, RepositoryNotFoundError, or
TransportError. Use errors.Is against ErrRepositoryNotFound, ErrUnauthorized,
or ErrRateLimited to classify an error without depending on its concrete type.
*/
package repofetch
