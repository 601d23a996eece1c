// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/repofetch/repofetch/pkg/repofetch"
)

// downloadRequestBody is the wire shape of a POST /api/download or
// POST /api/plan body.
type downloadRequestBody struct {
	Repo     string   `json:"repo"`
	Ref      string   `json:"ref,omitempty"`
	Filters  []string `json:"filters,omitempty"`
	Excludes []string `json:"excludes,omitempty"`
	DryRun   bool     `json:"dryRun,omitempty"`
}

// PlanResponse is the response for a dry-run/plan request.
type PlanResponse struct {
	Repo       string     `json:"repo"`
	Ref        string     `json:"ref"`
	Files      []PlanFile `json:"files"`
	TotalSize  int64      `json:"totalSize"`
	TotalFiles int        `json:"totalFiles"`
}

// PlanFile represents one matched file in a plan.
type PlanFile struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// SettingsResponse represents current settings.
type SettingsResponse struct {
	Token       string `json:"token,omitempty"`
	Destination string `json:"destination"`
	Concurrency int    `json:"concurrency"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a simple success message.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStartDownload starts a new download job.
func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	req, err := parseDownloadBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if req.DryRun {
		s.handlePlanInternal(w, req)
		return
	}

	job, wasExisting, err := s.jobs.CreateJob(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job", err.Error())
		return
	}

	if wasExisting {
		writeJSON(w, http.StatusOK, map[string]any{
			"job":     job,
			"message": "download already in progress",
		})
	} else {
		writeJSON(w, http.StatusAccepted, job)
	}
}

// handlePlan returns a download plan without starting the download.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var body downloadRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	body.DryRun = true
	req, err := parseDownloadBody(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	s.handlePlanInternal(w, req)
}

func parseDownloadBody(body downloadRequestBody) (StartDownloadRequest, error) {
	repo := body.Repo
	filters := body.Filters

	// "owner/name:glob,glob" shorthand.
	if strings.Contains(repo, ":") && len(filters) == 0 {
		parts := strings.SplitN(repo, ":", 2)
		repo = parts[0]
		for _, f := range strings.Split(parts[1], ",") {
			if f = strings.TrimSpace(f); f != "" {
				filters = append(filters, f)
			}
		}
	}

	if repo == "" || !strings.Contains(repo, "/") {
		return StartDownloadRequest{}, errInvalidRepo
	}

	return StartDownloadRequest{
		Repo:     repo,
		Ref:      body.Ref,
		Filters:  filters,
		Excludes: body.Excludes,
		DryRun:   body.DryRun,
	}, nil
}

type apiError string

func (e apiError) Error() string { return string(e) }

const errInvalidRepo = apiError("missing or invalid repo (expected owner/name)")

// handlePlanInternal computes a filtered file plan without downloading,
// using the JobManager's shared API service and manifest cache directly
// rather than spinning up a full Orchestrator.
func (s *Server) handlePlanInternal(w http.ResponseWriter, req StartDownloadRequest) {
	owner, name, _ := strings.Cut(req.Repo, "/")
	ref := req.Ref
	if ref == "" {
		ref = "main"
	}
	gitRef := repofetch.GitRef{Name: ref, Kind: repofetch.RefBranch}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var files []repofetch.FileEntry
	var err error
	if cached, ok := s.jobs.cache.Get(manifestPlanKey(owner, name, gitRef)); ok {
		files = cached
	} else {
		files, err = s.jobs.api.GetRepositoryTree(ctx, owner, name, gitRef)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to scan repository", err.Error())
			return
		}
		s.jobs.cache.Put(manifestPlanKey(owner, name, gitRef), files)
	}

	result := repofetch.FilterFiles(files, repofetch.FilterCriteria{
		IncludeGlobs: req.Filters,
		ExcludeGlobs: req.Excludes,
	})

	resp := PlanResponse{
		Repo:       req.Repo,
		Ref:        ref,
		TotalFiles: len(result.Included),
	}
	for _, f := range result.Included {
		resp.Files = append(resp.Files, PlanFile{Path: f.Path, Size: f.Size})
		resp.TotalSize += f.Size
	}

	writeJSON(w, http.StatusOK, resp)
}

// manifestPlanKey mirrors the private key format the Orchestrator uses for
// its Manifest Cache so plan requests and real downloads share cache entries.
func manifestPlanKey(owner, name string, ref repofetch.GitRef) string {
	return owner + "/" + name + "@" + ref.Name
}

// handleListJobs returns all jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.ListJobs()
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGetJob returns a specific job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok := s.jobs.GetJob(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob cancels a job. An unknown job ID is a 404; a job that has
// already reached a terminal status is a 409 carrying that frozen job (with
// its final Status/Progress/Error) so the caller can see what happened
// instead of guessing from the error alone.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.CancelJob(id)
	writeControlResult(w, job, err, "job cancelled")
}

// handlePauseJob pauses a running job. Same 404/409 contract as handleCancelJob.
func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.PauseJob(id)
	writeControlResult(w, job, err, "job paused")
}

// handleResumeJob resumes a paused job. Same 404/409 contract as handleCancelJob.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.ResumeJob(id)
	writeControlResult(w, job, err, "job resumed")
}

// writeControlResult maps a CancelJob/PauseJob/ResumeJob outcome onto the
// HTTP response: 404 for an unknown job, 409 with the frozen job body for
// one that has already finished, 200 otherwise.
func writeControlResult(w http.ResponseWriter, job *Job, err error, successMessage string) {
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: successMessage})
	case errJobNotFound:
		writeError(w, http.StatusNotFound, "job not found", "")
	case errJobTerminal:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "job has already finished",
			"job":   job,
		})
	default:
		writeError(w, http.StatusInternalServerError, "could not apply control operation", err.Error())
	}
}

// handleGetSettings returns current settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	tokenStatus := ""
	if s.config.Token != "" {
		tokenStatus = "********" + s.config.Token[max(0, len(s.config.Token)-4):]
	}

	writeJSON(w, http.StatusOK, SettingsResponse{
		Token:       tokenStatus,
		Destination: s.config.Destination,
		Concurrency: s.config.Concurrency,
	})
}

// handleUpdateSettings updates settings. Destination is not updatable via
// API: it is the server's filesystem root and changing it live would let a
// client redirect where jobs write.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       *string `json:"token,omitempty"`
		Concurrency *int    `json:"concurrency,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.Token != nil {
		s.config.Token = *req.Token
		s.jobs.mu.Lock()
		s.jobs.config.Token = *req.Token
		s.jobs.mu.Unlock()
	}
	if req.Concurrency != nil && *req.Concurrency > 0 {
		s.config.Concurrency = *req.Concurrency
		s.jobs.mu.Lock()
		s.jobs.config.Concurrency = *req.Concurrency
		s.jobs.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "settings updated"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}
