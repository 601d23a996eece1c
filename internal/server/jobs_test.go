// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestJobManager() *JobManager {
	cfg := Config{
		Destination: "./test_downloads",
		Concurrency: 2,
	}
	hub := NewWSHub(zerolog.Nop())
	go hub.Run()
	return NewJobManager(cfg, hub, zerolog.Nop())
}

func TestJobManager_CreateJob(t *testing.T) {
	mgr := newTestJobManager()

	t.Run("creates job with server-controlled output directory", func(t *testing.T) {
		job, wasExisting, err := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/hello-world", Ref: "main"})
		if err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		if wasExisting {
			t.Error("expected new job, got existing")
		}
		if job.OutputDir == "" {
			t.Error("expected a server-assigned output directory")
		}
	})

	t.Run("defaults ref to main", func(t *testing.T) {
		job, _, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/no-ref"})
		if job.Ref != "main" {
			t.Errorf("expected ref main, got %s", job.Ref)
		}
	})
}

func TestJobManager_Deduplication(t *testing.T) {
	mgr := newTestJobManager()

	req := StartDownloadRequest{Repo: "octocat/dedup", Ref: "main"}

	job1, wasExisting1, _ := mgr.CreateJob(req)
	if wasExisting1 {
		t.Error("first job should not be existing")
	}

	job2, wasExisting2, _ := mgr.CreateJob(req)
	if !wasExisting2 {
		t.Error("second job should be detected as existing")
	}
	if job1.ID != job2.ID {
		t.Errorf("expected same job ID, got %s vs %s", job1.ID, job2.ID)
	}
}

func TestJobManager_DifferentRefsNotDeduplicated(t *testing.T) {
	mgr := newTestJobManager()

	job1, _, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/refs", Ref: "v1"})
	job2, wasExisting, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/refs", Ref: "v2"})

	if wasExisting {
		t.Error("different refs should create different jobs")
	}
	if job1.ID == job2.ID {
		t.Error("different refs should have different IDs")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	mgr := newTestJobManager()
	job, _, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/get-test"})

	t.Run("returns existing job", func(t *testing.T) {
		found, ok := mgr.GetJob(job.ID)
		if !ok {
			t.Error("expected to find job")
		}
		if found.ID != job.ID {
			t.Error("wrong job returned")
		}
	})

	t.Run("returns false for missing job", func(t *testing.T) {
		_, ok := mgr.GetJob("nonexistent")
		if ok {
			t.Error("should not find nonexistent job")
		}
	})
}

func TestJobManager_ListJobs(t *testing.T) {
	mgr := newTestJobManager()

	mgr.CreateJob(StartDownloadRequest{Repo: "octocat/list1"})
	mgr.CreateJob(StartDownloadRequest{Repo: "octocat/list2"})
	mgr.CreateJob(StartDownloadRequest{Repo: "octocat/list3"})

	jobs := mgr.ListJobs()
	if len(jobs) < 3 {
		t.Errorf("expected at least 3 jobs, got %d", len(jobs))
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	mgr := newTestJobManager()
	job, _, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/cancel-test"})

	time.Sleep(20 * time.Millisecond)

	t.Run("cancels an active job", func(t *testing.T) {
		_, err := mgr.CancelJob(job.ID)
		if err != nil {
			t.Errorf("cancel should succeed, got %v", err)
		}
	})

	t.Run("returns errJobNotFound for nonexistent job", func(t *testing.T) {
		_, err := mgr.CancelJob("nonexistent")
		if err != errJobNotFound {
			t.Errorf("expected errJobNotFound, got %v", err)
		}
	})
}

func TestJobManager_PauseResumeUnknownJob(t *testing.T) {
	mgr := newTestJobManager()

	if _, err := mgr.PauseJob("nonexistent"); err != errJobNotFound {
		t.Errorf("expected errJobNotFound pausing an unknown job, got %v", err)
	}
	if _, err := mgr.ResumeJob("nonexistent"); err != errJobNotFound {
		t.Errorf("expected errJobNotFound resuming an unknown job, got %v", err)
	}
}

func TestJobManager_CancelJob_AlreadyTerminalReturnsFrozenJob(t *testing.T) {
	mgr := newTestJobManager()
	job, _, _ := mgr.CreateJob(StartDownloadRequest{Repo: "octocat/terminal-test"})

	mgr.mu.Lock()
	job.Status = JobStatusCompleted
	mgr.mu.Unlock()

	frozen, err := mgr.CancelJob(job.ID)
	if err != errJobTerminal {
		t.Fatalf("expected errJobTerminal, got %v", err)
	}
	if frozen == nil || frozen.ID != job.ID {
		t.Fatalf("expected the frozen job to be returned alongside errJobTerminal, got %v", frozen)
	}
}

func TestJobStatus_Values(t *testing.T) {
	statuses := []JobStatus{
		JobStatusQueued,
		JobStatusRunning,
		JobStatusPaused,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}

	for _, s := range statuses {
		if s == "" {
			t.Error("status should not be empty")
		}
	}
}
