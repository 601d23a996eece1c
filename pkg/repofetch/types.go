// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"fmt"
	"time"
)

// RepositoryRef identifies a remote repository by owner and name.
type RepositoryRef struct {
	Owner string
	Name  string
}

// DisplayName returns "owner/name".
func (r RepositoryRef) DisplayName() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// RefKind enumerates the kinds of a GitRef.
type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
	RefCommit RefKind = "commit"
)

// GitRef identifies a point in a repository's history.
type GitRef struct {
	Name string
	Kind RefKind
	SHA  string
}

// Validate enforces the commit/SHA invariant.
func (r GitRef) Validate() error {
	if r.Kind == RefCommit && r.SHA == "" {
		return fmt.Errorf("repofetch: commit ref %q requires a sha", r.Name)
	}
	return nil
}

// RepositoryType mirrors the visibility classes a GitHub-style service reports.
type RepositoryType string

const (
	RepoPublic   RepositoryType = "public"
	RepoPrivate  RepositoryType = "private"
	RepoInternal RepositoryType = "internal"
)

// RepositoryInfo carries repository metadata beyond the bare owner/name,
// as returned by the API Service's get_repository_info operation.
type RepositoryInfo struct {
	Ref            RepositoryRef
	URL            string
	DefaultBranch  string
	Type           RepositoryType
	SizeKB         int64
	IsPrivate      bool
	IsFork         bool
	Language       string
	Description    string
	Topics         []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryKind enumerates the kinds of manifest entries a tree listing can contain.
type EntryKind string

const (
	EntryBlob    EntryKind = "blob"
	EntryTree    EntryKind = "tree"
	EntrySymlink EntryKind = "symlink"
)

// FileEntry is one node of a repository tree listing. Only EntryBlob entries
// are ever downloaded; trees and symlinks exist for filter evaluation only.
type FileEntry struct {
	Path        string
	Kind        EntryKind
	Size        int64
	DownloadURL string
	SHA         string
}

// FilterCriteria controls which FileEntry values the Filter Engine includes.
// Every field is optional; the empty value imposes no constraint on its axis.
type FilterCriteria struct {
	IncludeGlobs   []string
	ExcludeGlobs   []string
	MinSize        *int64
	MaxSize        *int64
	IncludedExts   map[string]struct{}
	ExcludedExts   map[string]struct{}
	IncludeHidden  bool
	TargetPaths    []string
}

// DownloadStrategy enumerates the request's download mechanism. Only
// StrategyIndividual is implemented; the others are modeled to keep the
// request shape faithful to the system this was distilled from, and are
// rejected at validation time rather than silently treated as Individual.
type DownloadStrategy string

const (
	StrategyIndividual     DownloadStrategy = "individual"
	StrategyArchive        DownloadStrategy = "archive"
	StrategyGitClone       DownloadStrategy = "git_clone"
	StrategySparseCheckout DownloadStrategy = "sparse"
)

// DownloadRequest is a fully-specified request to download a filtered subset
// of a repository to a local destination.
type DownloadRequest struct {
	Repo     RepositoryRef
	Ref      GitRef
	Destination string
	Strategy DownloadStrategy
	Filters  FilterCriteria

	OverwriteExisting bool
	PreserveStructure bool
	CreateDestination bool
	ShowProgress      bool

	MaxConcurrent int
	ChunkSize     int
	Timeout       time.Duration

	DryRun bool
	Token  string
}

// DefaultDownloadRequest returns a request pre-populated with the richer
// defaults this spec adopts (see DESIGN.md, resolved DownloadConfig/
// DownloadRequest ambiguity): 5-way concurrency, an 8KiB chunk size, a
// 300-second per-operation timeout, structure preserved, destination created.
func DefaultDownloadRequest() DownloadRequest {
	return DownloadRequest{
		Strategy:          StrategyIndividual,
		PreserveStructure: true,
		CreateDestination: true,
		MaxConcurrent:     5,
		ChunkSize:         8192,
		Timeout:           300 * time.Second,
	}
}

// Validate enforces DownloadRequest's construction-time invariants.
func (r DownloadRequest) Validate() error {
	if r.Destination == "" {
		return fmt.Errorf("repofetch: destination is required")
	}
	if r.MaxConcurrent <= 0 {
		return fmt.Errorf("repofetch: max_concurrent must be positive")
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("repofetch: chunk_size must be positive")
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("repofetch: timeout must be positive")
	}
	if r.Strategy != "" && r.Strategy != StrategyIndividual {
		return fmt.Errorf("repofetch: download strategy %q not implemented", r.Strategy)
	}
	if err := r.Ref.Validate(); err != nil {
		return err
	}
	return nil
}

// ProgressSnapshot is a point-in-time, immutable view of a run's progress.
// It is produced on demand, never a live-mutated object handed to callers.
type ProgressSnapshot struct {
	TotalFiles      int
	DownloadedFiles int
	TotalBytes      int64
	DownloadedBytes int64
	CurrentFile     string
	StartedAt       time.Time
}

// PercentByBytes is 0 when TotalBytes is 0 (never divides by zero).
func (p ProgressSnapshot) PercentByBytes() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
}

// PercentByFiles is 0 when TotalFiles is 0.
func (p ProgressSnapshot) PercentByFiles() float64 {
	if p.TotalFiles == 0 {
		return 0
	}
	return float64(p.DownloadedFiles) / float64(p.TotalFiles) * 100
}

// Elapsed is the time since StartedAt.
func (p ProgressSnapshot) Elapsed() time.Duration {
	return time.Since(p.StartedAt)
}

// DownloadStatistics accumulates internal counters across a single run.
type DownloadStatistics struct {
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	CacheHits  int
	APICalls   int
	StartTime  time.Time
	EndTime    time.Time
}

// DurationSeconds is only meaningful once EndTime is set.
func (s DownloadStatistics) DurationSeconds() float64 {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime).Seconds()
}

// Status enumerates a DownloadResult's run-level state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// DownloadResult is the single, owned outcome of one execute() invocation.
// Once CompletedAt is set the result is frozen: no field is mutated further.
type DownloadResult struct {
	Request  DownloadRequest
	Status   Status
	Progress ProgressSnapshot

	DownloadedFiles []string
	SkippedFiles    []string
	FailedFiles     map[string]string
	MatchedFiles    []string

	StartedAt    time.Time
	CompletedAt  time.Time
	ErrorMessage string

	TotalTime  time.Duration
	AvgSpeed   float64
	CacheHits  int
	APICallsMade int
}

// MarkCompleted finalizes the result: status becomes Completed unless
// FailedFiles is non-empty, in which case it becomes Failed. Must not be
// called eagerly before all per-file outcomes are collected.
func (r *DownloadResult) MarkCompleted() {
	r.CompletedAt = time.Now()
	if len(r.FailedFiles) == 0 {
		r.Status = StatusCompleted
	} else {
		r.Status = StatusFailed
	}
	r.TotalTime = r.CompletedAt.Sub(r.StartedAt)
	if r.TotalTime > 0 && r.Progress.DownloadedBytes > 0 {
		r.AvgSpeed = float64(r.Progress.DownloadedBytes) / r.TotalTime.Seconds()
	}
}

// SuccessRate is downloaded/(downloaded+failed) as a percentage (0-100), 0
// when the denominator is 0.
func (r *DownloadResult) SuccessRate() float64 {
	total := len(r.DownloadedFiles) + len(r.FailedFiles)
	if total == 0 {
		return 0
	}
	return float64(len(r.DownloadedFiles)) / float64(total) * 100
}

// RateLimitInfo is the server-reported budget for outbound API calls.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Used      int
	ResetTime time.Time
}

// exhaustionThreshold is the soft reserve below which the Rate Limiter
// treats the budget as exhausted.
const exhaustionThreshold = 10

// IsExhausted reports whether Remaining has dropped to the soft reserve.
func (i RateLimitInfo) IsExhausted() bool {
	return i.Remaining <= exhaustionThreshold
}

// ResetInSeconds is never negative.
func (i RateLimitInfo) ResetInSeconds() float64 {
	if i.ResetTime.IsZero() {
		return 0
	}
	d := time.Until(i.ResetTime).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// CacheEntry is one Manifest Cache row: a cached tree listing with TTL expiry.
type CacheEntry struct {
	Key         string
	Files       []FileEntry
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AccessCount int
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e CacheEntry) IsExpired() bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.ExpiresAt)
}
