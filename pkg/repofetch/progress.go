// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"sync"
	"time"
)

// speedSmoothingFactor weights the most recent observation in the rolling
// exponential moving average.
const speedSmoothingFactor = 0.3

// SpeedTracker turns a sequence of ProgressSnapshot observations into a
// smoothed throughput figure and an ETA, independent of any rendering
// surface (the CLI live view feeds it every snapshot it polls).
type SpeedTracker struct {
	mu           sync.Mutex
	lastBytes    int64
	lastObserved time.Time
	speed        float64 // bytes/sec, EMA-smoothed
}

// NewSpeedTracker builds a tracker with no prior observations.
func NewSpeedTracker() *SpeedTracker {
	return &SpeedTracker{}
}

// Observe folds a new snapshot into the tracker and returns the current
// smoothed speed in bytes/sec.
func (t *SpeedTracker) Observe(snap ProgressSnapshot) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.lastObserved.IsZero() {
		t.lastBytes = snap.DownloadedBytes
		t.lastObserved = now
		return t.speed
	}

	elapsed := now.Sub(t.lastObserved).Seconds()
	if elapsed <= 0 {
		return t.speed
	}
	deltaBytes := snap.DownloadedBytes - t.lastBytes
	instant := float64(deltaBytes) / elapsed

	t.speed = smoothSpeed(instant, t.speed)
	t.lastBytes = snap.DownloadedBytes
	t.lastObserved = now
	return t.speed
}

// smoothSpeed blends a new instantaneous reading into the running average.
func smoothSpeed(current, previous float64) float64 {
	if previous == 0 {
		return current
	}
	return speedSmoothingFactor*current + (1-speedSmoothingFactor)*previous
}

// Speed returns the tracker's current smoothed bytes/sec without folding in
// a new observation.
func (t *SpeedTracker) Speed() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speed
}

// ETA estimates remaining time given a snapshot's totals and the tracker's
// current smoothed speed. Returns 0 when the speed is unknown or the run is
// already complete.
func (t *SpeedTracker) ETA(snap ProgressSnapshot) time.Duration {
	t.mu.Lock()
	speed := t.speed
	t.mu.Unlock()

	remaining := snap.TotalBytes - snap.DownloadedBytes
	if speed <= 0 || remaining <= 0 {
		return 0
	}
	seconds := float64(remaining) / speed
	return time.Duration(seconds * float64(time.Second))
}
