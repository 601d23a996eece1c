// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer() *Server {
	cfg := Config{
		Addr:        "127.0.0.1",
		Port:        0,
		Destination: "./test_downloads",
		Concurrency: 2,
	}
	return New(cfg)
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()

	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
}

func TestAPI_GetSettings(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()

	srv.handleGetSettings(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp SettingsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Destination != "./test_downloads" {
		t.Errorf("expected destination ./test_downloads, got %s", resp.Destination)
	}
}

func TestAPI_GetSettings_TokenMasked(t *testing.T) {
	cfg := Config{
		Destination: "./test",
		Token:       "ghp_abcdefghijklmnop",
	}
	srv := New(cfg)

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()

	srv.handleGetSettings(w, req)

	var resp SettingsResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Token == "ghp_abcdefghijklmnop" {
		t.Error("token should be masked, not exposed in full")
	}
	if resp.Token != "********mnop" {
		t.Errorf("expected masked token ********mnop, got %s", resp.Token)
	}
}

func TestAPI_UpdateSettings(t *testing.T) {
	srv := newTestServer()

	body := `{"concurrency": 16}`
	req := httptest.NewRequest("POST", "/api/settings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleUpdateSettings(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if srv.config.Concurrency != 16 {
		t.Errorf("expected concurrency 16, got %d", srv.config.Concurrency)
	}
}

func TestAPI_UpdateSettings_CantChangeDestination(t *testing.T) {
	srv := newTestServer()
	original := srv.config.Destination

	body := `{"destination": "/etc/passwd"}`
	req := httptest.NewRequest("POST", "/api/settings", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleUpdateSettings(w, req)

	if srv.config.Destination != original {
		t.Errorf("destination should not be changeable via API, got %s", srv.config.Destination)
	}
}

func TestAPI_StartDownload_ValidatesRepo(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "missing repo", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "invalid repo format", body: `{"repo": "invalid"}`, wantCode: http.StatusBadRequest},
		{name: "valid repo", body: `{"repo": "owner/name"}`, wantCode: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			srv.handleStartDownload(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d. body: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestAPI_StartDownload_DuplicateReturnsExisting(t *testing.T) {
	srv := newTestServer()

	body := `{"repo": "dup/test"}`

	req1 := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(body))
	req1.Header.Set("Content-Type", "application/json")
	w1 := httptest.NewRecorder()
	srv.handleStartDownload(w1, req1)

	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request should return 202, got %d", w1.Code)
	}

	var job1 Job
	json.Unmarshal(w1.Body.Bytes(), &job1)

	req2 := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(body))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	srv.handleStartDownload(w2, req2)

	if w2.Code != http.StatusOK {
		t.Fatalf("duplicate request should return 200, got %d", w2.Code)
	}

	var resp map[string]any
	json.Unmarshal(w2.Body.Bytes(), &resp)

	if resp["message"] != "download already in progress" {
		t.Errorf("expected duplicate message, got %v", resp["message"])
	}

	jobMap := resp["job"].(map[string]any)
	if jobMap["id"] != job1.ID {
		t.Error("duplicate should return same job ID")
	}
}

func TestAPI_ListJobs(t *testing.T) {
	srv := newTestServer()

	body := `{"repo": "list/test"}`
	req := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	listReq := httptest.NewRequest("GET", "/api/jobs", nil)
	listW := httptest.NewRecorder()
	srv.handleListJobs(listW, listReq)

	if listW.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", listW.Code)
	}

	var resp map[string]any
	json.Unmarshal(listW.Body.Bytes(), &resp)

	count := int(resp["count"].(float64))
	if count < 1 {
		t.Error("expected at least 1 job")
	}
}

func TestAPI_ParseFiltersFromRepo(t *testing.T) {
	srv := newTestServer()

	body := `{"repo": "owner/model:*.go,*.md"}`
	req := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	srv.handleStartDownload(w, req)

	var resp Job
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.Repo != "owner/model" {
		t.Errorf("repo should be parsed without filters, got %s", resp.Repo)
	}
	if len(resp.Filters) != 2 {
		t.Errorf("expected 2 filters, got %d", len(resp.Filters))
	}
}

func TestAPI_PauseResume_UnknownJob(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest("POST", "/api/jobs/nonexistent/pause", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()
	srv.handlePauseJob(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 pausing an unknown job, got %d", w.Code)
	}
}

func TestAPI_PauseResume_AlreadyTerminalJob_Returns409WithJob(t *testing.T) {
	srv := newTestServer()

	body := `{"repo": "terminal/test"}`
	req := httptest.NewRequest("POST", "/api/download", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleStartDownload(w, req)

	var job Job
	json.Unmarshal(w.Body.Bytes(), &job)

	// Force the job into a terminal state without waiting on the real
	// network call runJob would otherwise make.
	stored, _ := srv.jobs.GetJob(job.ID)
	srv.jobs.mu.Lock()
	stored.Status = JobStatusCompleted
	srv.jobs.mu.Unlock()

	pauseReq := httptest.NewRequest("POST", "/api/jobs/"+job.ID+"/pause", nil)
	pauseReq.SetPathValue("id", job.ID)
	pauseW := httptest.NewRecorder()
	srv.handlePauseJob(pauseW, pauseReq)

	if pauseW.Code != http.StatusConflict {
		t.Fatalf("expected 409 pausing an already-completed job, got %d", pauseW.Code)
	}

	var resp map[string]any
	json.Unmarshal(pauseW.Body.Bytes(), &resp)
	jobBody, ok := resp["job"].(map[string]any)
	if !ok {
		t.Fatalf("expected 409 body to carry the frozen job, got %v", resp)
	}
	if jobBody["id"] != job.ID {
		t.Errorf("expected frozen job id %s, got %v", job.ID, jobBody["id"])
	}
	if jobBody["status"] != string(JobStatusCompleted) {
		t.Errorf("expected frozen job status %s, got %v", JobStatusCompleted, jobBody["status"])
	}
}
