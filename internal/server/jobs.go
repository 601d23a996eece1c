// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/repofetch/repofetch/pkg/repofetch"
)

// JobStatus mirrors repofetch.Status at the control-plane boundary so the
// HTTP/JSON surface doesn't leak the library's internal Status type directly.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func fromRunStatus(s repofetch.Status) JobStatus {
	switch s {
	case repofetch.StatusInProgress:
		return JobStatusRunning
	case repofetch.StatusPaused:
		return JobStatusPaused
	case repofetch.StatusCompleted:
		return JobStatusCompleted
	case repofetch.StatusFailed:
		return JobStatusFailed
	case repofetch.StatusCancelled:
		return JobStatusCancelled
	default:
		return JobStatusQueued
	}
}

// Job represents one queued or running download, wrapping a dedicated
// repofetch.Orchestrator.
type Job struct {
	ID        string      `json:"id"`
	Repo      string      `json:"repo"`
	Ref       string      `json:"ref"`
	Filters   []string    `json:"filters,omitempty"`
	Excludes  []string    `json:"excludes,omitempty"`
	OutputDir string      `json:"outputDir"`
	Status    JobStatus   `json:"status"`
	Progress  JobProgress `json:"progress"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	StartedAt *time.Time  `json:"startedAt,omitempty"`
	EndedAt   *time.Time  `json:"endedAt,omitempty"`

	orchestrator *repofetch.Orchestrator `json:"-"`
}

// JobProgress holds aggregate progress info, mirroring repofetch.ProgressSnapshot.
type JobProgress struct {
	TotalFiles      int   `json:"totalFiles"`
	CompletedFiles  int   `json:"completedFiles"`
	TotalBytes      int64 `json:"totalBytes"`
	DownloadedBytes int64 `json:"downloadedBytes"`
}

func fromSnapshot(s repofetch.ProgressSnapshot) JobProgress {
	return JobProgress{
		TotalFiles:      s.TotalFiles,
		CompletedFiles:  s.DownloadedFiles,
		TotalBytes:      s.TotalBytes,
		DownloadedBytes: s.DownloadedBytes,
	}
}

// JobManager owns the shared API/sink/cache/limiter/retryer collaborators
// and one Orchestrator per job.
type JobManager struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	config     Config
	listeners  []chan *Job
	listenerMu sync.RWMutex
	wsHub      *WSHub
	log        zerolog.Logger

	api     repofetch.APIService
	sink    repofetch.SinkService
	cache   *repofetch.ManifestCache
	limiter *repofetch.RateLimiter
	retryer *repofetch.Retryer
}

// NewJobManager creates a new job manager, wiring one shared set of
// repofetch collaborators that every job's Orchestrator reuses.
func NewJobManager(cfg Config, wsHub *WSHub, log zerolog.Logger) *JobManager {
	limiter := repofetch.NewRateLimiter(time.Second, 60*time.Second, true)
	retryer := repofetch.NewRetryer(repofetch.DefaultRetryConfig(), log)
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = repofetch.DefaultManifestCacheTTL
	}
	return &JobManager{
		jobs:    make(map[string]*Job),
		config:  cfg,
		wsHub:   wsHub,
		log:     log,
		api:     repofetch.NewHTTPAPIService(cfg.Token, limiter, retryer),
		sink:    repofetch.NewFilesystemSink(),
		cache:   repofetch.NewManifestCache(ttl),
		limiter: limiter,
		retryer: retryer,
	}
}

func generateID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// StartDownloadRequest is the control-plane's job-creation input, kept
// separate from repofetch.DownloadRequest so the HTTP layer's JSON shape can
// evolve independently of the library's.
type StartDownloadRequest struct {
	Repo     string
	Ref      string
	Filters  []string
	Excludes []string
	DryRun   bool
}

// CreateJob creates a new download job, or returns an existing one already
// queued/running against the same repo+ref.
func (m *JobManager) CreateJob(req StartDownloadRequest) (*Job, bool, error) {
	ref := req.Ref
	if ref == "" {
		ref = "main"
	}

	m.mu.Lock()
	for _, existing := range m.jobs {
		if existing.Repo == req.Repo && existing.Ref == ref &&
			(existing.Status == JobStatusQueued || existing.Status == JobStatusRunning || existing.Status == JobStatusPaused) {
			m.mu.Unlock()
			return existing, true, nil
		}
	}

	orch := repofetch.NewOrchestrator(m.api, m.sink, m.cache, m.limiter, m.retryer, m.log)
	job := &Job{
		ID:           generateID(),
		Repo:         req.Repo,
		Ref:          ref,
		Filters:      req.Filters,
		Excludes:     req.Excludes,
		OutputDir:    filepath.Join(m.config.Destination, strings.ReplaceAll(req.Repo, "/", "_")),
		Status:       JobStatusQueued,
		CreatedAt:    time.Now(),
		orchestrator: orch,
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.runJob(job)

	return job, false, nil
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	return job, ok
}

// ListJobs returns all jobs.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelJob cancels a running, paused, or queued job. It returns
// errJobNotFound if id names no job, or errJobTerminal (with the job, whose
// Status/Progress/Error are the frozen final result) if the job has already
// reached a terminal status.
func (m *JobManager) CancelJob(id string) (*Job, error) {
	job, ok := m.GetJob(id)
	if !ok {
		return nil, errJobNotFound
	}

	switch job.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		job.orchestrator.Cancel()
		return job, nil
	default:
		return job, errJobTerminal
	}
}

// PauseJob suspends a running job at its next cooperative checkpoint. Same
// errJobNotFound/errJobTerminal contract as CancelJob.
func (m *JobManager) PauseJob(id string) (*Job, error) {
	job, ok := m.GetJob(id)
	if !ok {
		return nil, errJobNotFound
	}
	switch job.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		job.orchestrator.Pause()
		return job, nil
	default:
		return job, errJobTerminal
	}
}

// ResumeJob releases a previously paused job. Same errJobNotFound/
// errJobTerminal contract as CancelJob.
func (m *JobManager) ResumeJob(id string) (*Job, error) {
	job, ok := m.GetJob(id)
	if !ok {
		return nil, errJobNotFound
	}
	switch job.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		job.orchestrator.Resume()
		return job, nil
	default:
		return job, errJobTerminal
	}
}

// DeleteJob removes a job from the list, cancelling it first if active.
func (m *JobManager) DeleteJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return false
	}

	switch job.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusPaused:
		job.orchestrator.Cancel()
	}

	delete(m.jobs, id)
	return true
}

// Subscribe adds a listener for job updates.
func (m *JobManager) Subscribe() chan *Job {
	ch := make(chan *Job, 100)
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, ch)
	m.listenerMu.Unlock()
	return ch
}

// Unsubscribe removes a listener.
func (m *JobManager) Unsubscribe(ch chan *Job) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()

	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *JobManager) notifyListeners(job *Job) {
	m.listenerMu.RLock()
	for _, ch := range m.listeners {
		select {
		case ch <- job:
		default:
		}
	}
	m.listenerMu.RUnlock()

	if m.wsHub != nil {
		m.wsHub.BroadcastJob(job)
	}
}

// runJob drives one job's Orchestrator to completion. notifyListeners must
// never be called while holding m.mu.
func (m *JobManager) runJob(job *Job) {
	owner, name, _ := strings.Cut(job.Repo, "/")

	m.mu.Lock()
	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	m.mu.Unlock()
	m.notifyListeners(job)

	req := repofetch.DefaultDownloadRequest()
	req.Repo = repofetch.RepositoryRef{Owner: owner, Name: name}
	req.Ref = repofetch.GitRef{Name: job.Ref, Kind: repofetch.RefBranch}
	req.Destination = job.OutputDir
	req.Filters.IncludeGlobs = job.Filters
	req.Filters.ExcludeGlobs = job.Excludes
	if m.config.Concurrency > 0 {
		req.MaxConcurrent = m.config.Concurrency
	}
	req.Token = m.config.Token

	job.orchestrator.OnProgress = func(snap repofetch.ProgressSnapshot) {
		cur := job.orchestrator.CurrentStatus()

		m.mu.Lock()
		job.Progress = fromSnapshot(snap)
		switch cur {
		case repofetch.StatusPaused:
			job.Status = JobStatusPaused
		case repofetch.StatusInProgress:
			if job.Status == JobStatusPaused {
				job.Status = JobStatusRunning
			}
		}
		m.mu.Unlock()

		m.notifyListeners(job)
	}

	result, err := job.orchestrator.Execute(context.Background(), req)

	m.mu.Lock()
	endTime := time.Now()
	job.EndedAt = &endTime
	if result != nil {
		job.Status = fromRunStatus(result.Status)
		job.Progress = fromSnapshot(result.Progress)
	}
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
	} else if result != nil && result.ErrorMessage != "" {
		job.Error = result.ErrorMessage
	}
	m.mu.Unlock()

	m.notifyListeners(job)
}

type jobError string

func (e jobError) Error() string { return string(e) }

const errJobNotFound = jobError("repofetch: job not found")

// errJobTerminal indicates the job exists but has already reached a
// terminal status (completed, failed, or cancelled), so the requested
// control operation no longer applies.
const errJobTerminal = jobError("repofetch: job has already finished")
