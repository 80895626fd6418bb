package models

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestApply_Completed(t *testing.T) {
	now := time.Now()
	task := &Task{ID: "t1", Status: StatusProcessing, OriginalSize: 200, Progress: 70}
	size := int64(50)

	if err := Apply(task, StatusCompleted, Update{CompressedSize: &size}, now); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if task.Status != StatusCompleted || task.Progress != 100 {
		t.Errorf("Expected completed at 100, got %s at %d", task.Status, task.Progress)
	}
	if task.CompressionRatio == nil || *task.CompressionRatio != 75 {
		t.Errorf("Expected ratio 75, got %v", task.CompressionRatio)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(now) {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestApply_RejectsIncompleteUpdates(t *testing.T) {
	now := time.Now()

	processing := &Task{Status: StatusProcessing}
	if err := Apply(processing, StatusCompleted, Update{}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected completion without a size to be rejected, got %v", err)
	}
	if err := Apply(processing, StatusFailed, Update{ErrorKind: ErrorKindIO}, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected failure without a message to be rejected, got %v", err)
	}
	if processing.Status != StatusProcessing {
		t.Errorf("Rejected updates must leave the task alone, got %s", processing.Status)
	}
}

func TestApplyProgress(t *testing.T) {
	now := time.Now()
	task := &Task{Status: StatusProcessing, Progress: 40}

	if err := ApplyProgress(task, 20, now); err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}
	if task.Progress != 40 {
		t.Errorf("Progress must not decrease, got %d", task.Progress)
	}

	if err := ApplyProgress(task, 100, now); err != nil {
		t.Fatalf("ApplyProgress failed: %v", err)
	}
	if task.Progress != 99 {
		t.Errorf("Expected progress capped at 99, got %d", task.Progress)
	}

	pending := &Task{Status: StatusPending}
	if err := ApplyProgress(pending, 10, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected progress on a pending task to be rejected, got %v", err)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(0, 10); got != 0 {
		t.Errorf("Expected 0 for an empty original, got %v", got)
	}
	if got := Ratio(100, 120); got != -20 {
		t.Errorf("Expected a negative ratio when the output grows, got %v", got)
	}
}
