// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders a live terminal view of an in-progress download,
// polling a repofetch.Orchestrator rather than consuming a push-based event
// stream.
package tui

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/term"

	"github.com/repofetch/repofetch/pkg/repofetch"
)

// IsInteractive reports whether stderr is a terminal; a live progress bar
// only makes sense there.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// barTemplate lays out label, counters, bar, percent, speed, and ETA columns.
const barTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }} {{ speed . }} {{ rtime . "ETA %s"}}`

// LiveRenderer polls an Orchestrator's progress on a fixed interval and
// renders a single aggregate bar. The bar computes its own speed and ETA
// columns; each polled snapshot is also fed to a repofetch.SpeedTracker,
// whose figures the bar does not display.
type LiveRenderer struct {
	orch    *repofetch.Orchestrator
	tracker *repofetch.SpeedTracker
	bar     *pb.ProgressBar

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewLiveRenderer starts polling orch's progress at a fixed interval and
// renders it to stderr so stdout stays clean for --json/plan output.
func NewLiveRenderer(orch *repofetch.Orchestrator, label string) *LiveRenderer {
	bar := pb.ProgressBarTemplate(barTemplate).Start64(0)
	bar.Set(pb.Bytes, true)
	bar.Set(pb.SIBytesPrefix, true)
	bar.Set("prefix", label)
	bar.SetWriter(os.Stderr)

	lr := &LiveRenderer{
		orch:    orch,
		tracker: repofetch.NewSpeedTracker(),
		bar:     bar,
		done:    make(chan struct{}),
	}
	go lr.loop()
	return lr
}

func (lr *LiveRenderer) loop() {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-lr.done:
			lr.render()
			return
		case <-ticker.C:
			lr.render()
		}
	}
}

func (lr *LiveRenderer) render() {
	snap := lr.orch.CurrentProgress()
	lr.tracker.Observe(snap)
	lr.bar.SetTotal(snap.TotalBytes)
	lr.bar.SetCurrent(snap.DownloadedBytes)
}

// Close stops polling and finalizes the bar's on-screen state. Safe to call
// more than once.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	close(lr.done)
	lr.mu.Unlock()

	lr.bar.Finish()
}

// Summarize prints a one-line terminal summary once a run has reached a
// terminal status.
func Summarize(result *repofetch.DownloadResult) {
	fmt.Fprintf(os.Stderr, "%s: %d downloaded, %d skipped, %d failed (%s)\n",
		result.Request.Repo.DisplayName(),
		len(result.DownloadedFiles),
		len(result.SkippedFiles),
		len(result.FailedFiles),
		result.Status,
	)
}
