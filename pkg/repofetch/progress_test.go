// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package repofetch

import (
	"testing"
	"time"
)

func TestSpeedTracker_FirstObservationHasNoRate(t *testing.T) {
	tr := NewSpeedTracker()
	speed := tr.Observe(ProgressSnapshot{DownloadedBytes: 100})
	if speed != 0 {
		t.Fatalf("expected 0 speed on first observation, got %f", speed)
	}
}

func TestSpeedTracker_SecondObservationProducesRate(t *testing.T) {
	tr := NewSpeedTracker()
	tr.Observe(ProgressSnapshot{DownloadedBytes: 0})
	time.Sleep(10 * time.Millisecond)
	speed := tr.Observe(ProgressSnapshot{DownloadedBytes: 1000})
	if speed <= 0 {
		t.Fatalf("expected positive speed after bytes progressed, got %f", speed)
	}
}

func TestSpeedTracker_ETAZeroWhenComplete(t *testing.T) {
	tr := NewSpeedTracker()
	tr.Observe(ProgressSnapshot{DownloadedBytes: 0})
	time.Sleep(5 * time.Millisecond)
	snap := ProgressSnapshot{TotalBytes: 100, DownloadedBytes: 100}
	tr.Observe(snap)
	if eta := tr.ETA(snap); eta != 0 {
		t.Fatalf("expected 0 ETA when downloaded==total, got %v", eta)
	}
}

func TestSmoothSpeed_BlendsTowardCurrent(t *testing.T) {
	blended := smoothSpeed(100, 0)
	if blended != 100 {
		t.Fatalf("expected first blend to equal current when previous is 0, got %f", blended)
	}
	blended = smoothSpeed(200, 100)
	want := speedSmoothingFactor*200 + (1-speedSmoothingFactor)*100
	if blended != want {
		t.Fatalf("expected %f, got %f", want, blended)
	}
}
