package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

var MediaKinds = []MediaKind{KindImage, KindAudio, KindVideo}

func ParseMediaKind(s string) (MediaKind, bool) {
	switch MediaKind(s) {
	case KindImage, KindAudio, KindVideo:
		return MediaKind(s), true
	}
	return "", false
}

const (
	MinQuality = 10
	MaxQuality = 100
)

type Settings struct {
	Quality      int     `json:"quality"`
	AdaptiveMode bool    `json:"adaptive_mode"`
	Bitrate      float64 `json:"bitrate,omitempty"`
}

// ErrorKind classifies why a task failed.
type ErrorKind string

const (
	ErrorKindCodecFatal ErrorKind = "codec_fatal"
	ErrorKindIO         ErrorKind = "io"
	ErrorKindWorkerLost ErrorKind = "worker_lost"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindEnqueue    ErrorKind = "enqueue_failed"
)

type Task struct {
	ID               string
	TraceID          string
	OriginalFilename string
	MediaKind        MediaKind
	Settings         Settings
	Status           TaskStatus
	Progress         int
	OriginalSize     int64
	CompressedSize   *int64
	CompressionRatio *float64
	ErrorKind        ErrorKind
	ErrorMessage     string
	Report           *Report
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.CompressedSize != nil {
		v := *t.CompressedSize
		c.CompressedSize = &v
	}
	if t.CompressionRatio != nil {
		v := *t.CompressionRatio
		c.CompressionRatio = &v
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	c.Report = t.Report.Clone()
	return &c
}

// Update carries the fields written together with a status transition.
type Update struct {
	Progress       *int
	CompressedSize *int64
	Report         *Report
	ErrorKind      ErrorKind
	ErrorMessage   string
}

// Apply validates u against the lifecycle and writes it onto t. The caller must hold
// exclusive access to t.
func Apply(t *Task, to TaskStatus, u Update, now time.Time) error {
	if !CanTransition(t.Status, to) {
		return ErrInvalidTransition
	}

	switch to {
	case StatusProcessing:
		t.StartedAt = &now
		if u.Progress != nil {
			t.Progress = clampProgress(*u.Progress)
		}
	case StatusCompleted:
		if u.CompressedSize == nil || *u.CompressedSize < 0 {
			return ErrInvalidTransition
		}
		size := *u.CompressedSize
		t.CompressedSize = &size
		ratio := Ratio(t.OriginalSize, size)
		t.CompressionRatio = &ratio
		t.Progress = 100
		t.Report = u.Report.Clone()
		t.CompletedAt = &now
	case StatusFailed:
		if u.ErrorMessage == "" {
			return ErrInvalidTransition
		}
		t.ErrorKind = u.ErrorKind
		t.ErrorMessage = u.ErrorMessage
		if u.Report != nil {
			t.Report = u.Report.Clone()
		}
		t.CompletedAt = &now
	}

	t.Status = to
	t.UpdatedAt = now
	return nil
}

// Ratio is the percentage size reduction from original to compressed.
func Ratio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return (1 - float64(compressed)/float64(original)) * 100
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// ApplyProgress records a progress milestone for a processing task. Progress never
// decreases and stays below 100 until the completing transition.
func ApplyProgress(t *Task, p int, now time.Time) error {
	if t.Status != StatusProcessing {
		return ErrInvalidTransition
	}
	if p > 99 {
		p = 99
	}
	if p > t.Progress {
		t.Progress = p
	}
	t.UpdatedAt = now
	return nil
}
