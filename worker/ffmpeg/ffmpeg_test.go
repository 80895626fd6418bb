package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r := NewRunner("", "", t.TempDir())
	if !r.Available() {
		t.Skip("ffmpeg/ffprobe not installed")
	}
	return r
}

// testClip renders a short synthetic clip with ffmpeg's built-in test source.
func testClip(t *testing.T, r *Runner) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx, r.FFmpegPath, "-y", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x48:rate=10",
		"-c:v", "mpeg4", path)
	if err != nil {
		t.Fatalf("render test clip: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read test clip: %v", err)
	}
	return data
}

func TestRunner_ProbeVideo(t *testing.T) {
	r := newTestRunner(t)
	clip := testClip(t, r)

	info, err := r.Probe(context.Background(), clip)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	video, ok := info.Video()
	if !ok {
		t.Fatal("Expected a video stream")
	}
	if video.Width != 64 || video.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", video.Width, video.Height)
	}
	if info.Duration <= 0 {
		t.Errorf("Expected a positive duration, got %f", info.Duration)
	}
}

func TestRunner_ProbeRejectsGarbage(t *testing.T) {
	r := newTestRunner(t)
	if _, err := r.Probe(context.Background(), []byte("definitely not media")); err == nil {
		t.Error("Expected probe error for garbage input")
	}
}

func TestRunner_ExtractFrames(t *testing.T) {
	r := newTestRunner(t)
	clip := testClip(t, r)

	frames, err := r.ExtractFrames(context.Background(), clip, 1, 3)
	if err != nil {
		t.Fatalf("ExtractFrames failed: %v", err)
	}
	if len(frames) == 0 || len(frames) > 3 {
		t.Fatalf("Expected 1-3 frames, got %d", len(frames))
	}
	if b := frames[0].Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("Unexpected frame size %v", b)
	}
}

func TestRunner_TranscodeCleansUp(t *testing.T) {
	r := newTestRunner(t)
	clip := testClip(t, r)

	out, err := r.Transcode(context.Background(), clip, ".avi", "-vf", "scale=32:24", "-c:v", "mpeg4")
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	info, err := r.Probe(context.Background(), out)
	if err != nil {
		t.Fatalf("Probe output failed: %v", err)
	}
	if v, _ := info.Video(); v.Width != 32 {
		t.Errorf("Expected scaled width 32, got %d", v.Width)
	}

	left, _ := filepath.Glob(filepath.Join(r.TempDir, "media-*"))
	if len(left) != 0 {
		t.Errorf("Expected temp files removed, found %v", left)
	}
}
