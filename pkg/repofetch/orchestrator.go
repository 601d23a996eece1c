// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Orchestrator drives one execute/cancel/pause/resume lifecycle over a
// DownloadRequest. An Orchestrator is single-use per run but not single-use
// overall: Execute may be called again once the prior run has reached a
// terminal status, since resetState clears per-run tracking on every exit
// path.
type Orchestrator struct {
	api     APIService
	sink    SinkService
	cache   *ManifestCache
	limiter *RateLimiter
	retryer *Retryer
	log     zerolog.Logger

	// OnProgress, if set, is invoked after every per-file outcome with a
	// fresh snapshot. It must not block; callers needing back-pressure
	// should buffer internally (the control-plane server does, via its
	// websocket hub).
	OnProgress func(ProgressSnapshot)

	mu         sync.Mutex
	result     *DownloadResult
	cancelFunc context.CancelFunc
	paused     bool
	resumeGate chan struct{}
}

// NewOrchestrator wires an Orchestrator's API, sink, cache, rate limiter,
// retryer, and logger.
func NewOrchestrator(api APIService, sink SinkService, cache *ManifestCache, limiter *RateLimiter, retryer *Retryer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:     api,
		sink:    sink,
		cache:   cache,
		limiter: limiter,
		retryer: retryer,
		log:     log,
	}
}

// Execute runs one full download lifecycle to completion, cancellation, or
// failure. The result is published to the Orchestrator (retrievable via
// CurrentProgress/CurrentStatus) before any per-file work begins, so a
// concurrent observer never sees a gap between "run started" and "result
// exists".
func (o *Orchestrator) Execute(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelFunc = cancel
	o.paused = false
	o.mu.Unlock()
	defer cancel()

	startedAt := time.Now()
	result := &DownloadResult{
		Request:     req,
		Status:      StatusInProgress,
		Progress:    ProgressSnapshot{StartedAt: startedAt},
		FailedFiles: make(map[string]string),
		StartedAt:   startedAt,
	}

	// Published before any per-file task is scheduled.
	o.mu.Lock()
	o.result = result
	o.mu.Unlock()

	stats := DownloadStatistics{StartTime: startedAt}

	files, err := o.fetchManifest(runCtx, req, &stats)
	if err != nil {
		o.finishFailed(result, err)
		return result, err
	}

	filterResult := FilterFiles(files, req.Filters)
	matched := filterResult.Included
	matchedPaths := make([]string, len(matched))
	var totalBytes int64
	for i, f := range matched {
		matchedPaths[i] = f.Path
		totalBytes += f.Size
	}
	result.MatchedFiles = matchedPaths
	result.Progress.TotalFiles = len(matched)
	result.Progress.TotalBytes = totalBytes
	o.emitProgress(result)

	if req.DryRun {
		// Report the files a real run would skip as already present.
		if !req.OverwriteExisting {
			for _, f := range matched {
				destPath := o.sink.ResolvePath(req.Destination, f.Path, req.PreserveStructure)
				if exists, err := o.sink.Exists(destPath); err == nil && exists {
					result.SkippedFiles = append(result.SkippedFiles, f.Path)
				}
			}
		}
		result.Status = StatusCompleted
		result.CompletedAt = time.Now()
		o.resetState()
		return result, nil
	}

	if req.CreateDestination {
		if err := o.sink.EnsureDir(req.Destination); err != nil {
			o.finishFailed(result, err)
			return result, err
		}
	}

	o.downloadFilesConcurrently(runCtx, req, matched, result, &stats)

	stats.EndTime = time.Now()
	result.CacheHits = stats.CacheHits
	result.APICallsMade = stats.APICalls

	o.mu.Lock()
	cancelled := runCtx.Err() != nil || result.Status == StatusCancelled
	o.mu.Unlock()
	if cancelled {
		result.Status = StatusCancelled
		if result.CompletedAt.IsZero() {
			result.CompletedAt = time.Now()
		}
	} else {
		result.MarkCompleted()
	}

	o.resetState()
	return result, nil
}

// fetchManifest consults the manifest cache before falling back to a live
// API call.
func (o *Orchestrator) fetchManifest(ctx context.Context, req DownloadRequest, stats *DownloadStatistics) ([]FileEntry, error) {
	key := manifestCacheKey(req.Repo.Owner, req.Repo.Name, req.Ref)
	if cached, ok := o.cache.Get(key); ok {
		stats.CacheHits++
		return cached, nil
	}
	files, err := o.api.GetRepositoryTree(ctx, req.Repo.Owner, req.Repo.Name, req.Ref)
	if err != nil {
		return nil, err
	}
	stats.APICalls++
	o.cache.Put(key, files)
	return files, nil
}

func (o *Orchestrator) finishFailed(result *DownloadResult, err error) {
	result.Status = StatusFailed
	result.ErrorMessage = err.Error()
	result.CompletedAt = time.Now()
	o.resetState()
}

// downloadFilesConcurrently runs one goroutine per matched file, bounded by
// a weighted semaphore sized to req.MaxConcurrent.
func (o *Orchestrator) downloadFilesConcurrently(ctx context.Context, req DownloadRequest, matched []FileEntry, result *DownloadResult, stats *DownloadStatistics) {
	sem := semaphore.NewWeighted(int64(req.MaxConcurrent))
	var wg sync.WaitGroup
	var mu sync.Mutex // guards result/stats mutation across goroutines

	for _, f := range matched {
		f := f
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context done: record every remaining file as failed rather
			// than silently dropping it from the accounting.
			mu.Lock()
			result.FailedFiles[f.Path] = ctx.Err().Error()
			stats.Failed++
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			o.downloadOne(ctx, req, f, result, stats, &mu)
		}()
	}
	wg.Wait()
}

// downloadOne performs one file's full lifecycle: cancellation checks,
// cooperative pause suspension, fetch, and save.
func (o *Orchestrator) downloadOne(ctx context.Context, req DownloadRequest, f FileEntry, result *DownloadResult, stats *DownloadStatistics, mu *sync.Mutex) {
	if ctx.Err() != nil {
		return
	}
	if err := o.waitForResume(ctx); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	destPath := o.sink.ResolvePath(req.Destination, f.Path, req.PreserveStructure)

	if !req.OverwriteExisting {
		if exists, err := o.sink.Exists(destPath); err == nil && exists {
			mu.Lock()
			result.SkippedFiles = append(result.SkippedFiles, f.Path)
			stats.Skipped++
			mu.Unlock()
			o.emitProgress(result)
			return
		}
	}

	content, err := o.api.GetFileContent(ctx, f.DownloadURL)
	if err != nil {
		mu.Lock()
		result.FailedFiles[f.Path] = err.Error()
		stats.Failed++
		mu.Unlock()
		o.emitProgress(result)
		return
	}

	if err := o.waitForResume(ctx); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	if err := o.sink.Save(destPath, content); err != nil {
		mu.Lock()
		result.FailedFiles[f.Path] = err.Error()
		stats.Failed++
		mu.Unlock()
		o.emitProgress(result)
		return
	}

	mu.Lock()
	result.DownloadedFiles = append(result.DownloadedFiles, f.Path)
	stats.Downloaded++
	stats.Bytes += int64(len(content))
	result.Progress.DownloadedFiles = stats.Downloaded
	result.Progress.DownloadedBytes = stats.Bytes
	result.Progress.CurrentFile = f.Path
	mu.Unlock()
	o.emitProgress(result)
}

// waitForResume blocks while the orchestrator is paused, returning early if
// ctx is cancelled.
func (o *Orchestrator) waitForResume(ctx context.Context) error {
	o.mu.Lock()
	paused := o.paused
	gate := o.resumeGate
	o.mu.Unlock()
	if !paused {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) emitProgress(result *DownloadResult) {
	if o.OnProgress == nil {
		return
	}
	o.OnProgress(result.Progress)
}

// Cancel requests cooperative cancellation of the current run and returns
// the (now-cancelled) in-flight result, or nil if no run is in progress.
func (o *Orchestrator) Cancel() *DownloadResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		o.log.Warn().Msg("no active download to cancel")
		return nil
	}
	if o.cancelFunc != nil {
		o.cancelFunc()
	}
	if o.result.CompletedAt.IsZero() {
		o.result.Status = StatusCancelled
		o.result.CompletedAt = time.Now()
	}
	return o.result
}

// Pause suspends per-file work at the next cooperative checkpoint and
// returns the in-flight result, or nil if no run is in progress. Idempotent:
// pausing an already-paused run just returns the current result.
func (o *Orchestrator) Pause() *DownloadResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		o.log.Warn().Msg("no active download to pause")
		return nil
	}
	if o.paused {
		return o.result
	}
	o.paused = true
	o.resumeGate = make(chan struct{})
	if o.result.Status == StatusInProgress {
		o.result.Status = StatusPaused
	}
	return o.result
}

// Resume releases a paused run and returns the in-flight result, or nil if
// no run is in progress.
func (o *Orchestrator) Resume() *DownloadResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		o.log.Warn().Msg("no active download to resume")
		return nil
	}
	if !o.paused {
		return o.result
	}
	o.paused = false
	close(o.resumeGate)
	if o.result.Status == StatusPaused {
		o.result.Status = StatusInProgress
	}
	return o.result
}

// CurrentProgress returns a fresh snapshot of the in-flight run's progress,
// never the live object. The zero value is returned if no run has started.
func (o *Orchestrator) CurrentProgress() ProgressSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return ProgressSnapshot{}
	}
	return o.result.Progress
}

// CurrentStatus returns the in-flight run's status, or StatusPending if no
// run is in progress (including after a prior run has torn down).
func (o *Orchestrator) CurrentStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.result == nil {
		return StatusPending
	}
	return o.result.Status
}

// CurrentResult returns the in-flight run's result, or nil if no run is in
// progress. Like CurrentProgress/CurrentStatus, it reports nothing once the
// run has torn down — callers that need the final result must keep the
// value Execute returned.
func (o *Orchestrator) CurrentResult() *DownloadResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// resetState clears all per-run tracking, including the published result,
// so the Orchestrator reports nothing in progress and is ready for a
// subsequent Execute call. Called on every exit path from Execute —
// success, failure, or cancellation alike.
func (o *Orchestrator) resetState() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = nil
	o.cancelFunc = nil
	o.paused = false
	o.resumeGate = nil
}
