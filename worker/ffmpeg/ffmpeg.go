package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Runner wraps ffmpeg/ffprobe calls. Inputs and outputs go through temp files because
// several containers (MP4 in particular) need seekable IO.
type Runner struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string
}

func NewRunner(ffmpegPath, ffprobePath, tempDir string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Runner{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, TempDir: tempDir}
}

// Available reports whether both binaries can be found.
func (r *Runner) Available() bool {
	if _, err := exec.LookPath(r.FFmpegPath); err != nil {
		return false
	}
	_, err := exec.LookPath(r.FFprobePath)
	return err == nil
}

type Stream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type ProbeInfo struct {
	FormatName string
	Duration   float64
	Streams    []Stream
}

func (p *ProbeInfo) HasStream(codecType string) bool {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// Video returns the first video stream, if any.
func (p *ProbeInfo) Video() (Stream, bool) {
	for _, s := range p.Streams {
		if s.CodecType == "video" {
			return s, true
		}
	}
	return Stream{}, false
}

// Probe inspects an in-memory media file.
func (r *Runner) Probe(ctx context.Context, data []byte) (*ProbeInfo, error) {
	var info *ProbeInfo
	err := r.withInputFile(data, func(inputPath string) error {
		args := []string{
			"-v", "error",
			"-show_entries", "format=format_name,duration:stream=codec_type,codec_name,width,height,sample_rate,channels",
			"-of", "json",
			inputPath,
		}
		cmd := exec.CommandContext(ctx, r.FFprobePath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}

		var raw struct {
			Format struct {
				FormatName string `json:"format_name"`
				Duration   string `json:"duration"`
			} `json:"format"`
			Streams []Stream `json:"streams"`
		}
		if err := json.Unmarshal(out, &raw); err != nil {
			return fmt.Errorf("parse ffprobe output: %w", err)
		}
		if len(raw.Streams) == 0 {
			return fmt.Errorf("no media streams found")
		}

		duration, _ := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64)
		info = &ProbeInfo{
			FormatName: raw.Format.FormatName,
			Duration:   duration,
			Streams:    raw.Streams,
		}
		return nil
	})
	return info, err
}

// Transcode feeds data to ffmpeg as the single input and returns the produced file.
// args are placed between the input and the output path.
func (r *Runner) Transcode(ctx context.Context, data []byte, outputExt string, args ...string) ([]byte, error) {
	var out []byte
	err := r.withInputFile(data, func(inputPath string) error {
		outputPath := inputPath + ".out" + outputExt
		defer os.Remove(outputPath)

		full := append([]string{"-y", "-v", "error", "-i", inputPath}, args...)
		full = append(full, outputPath)
		if err := run(ctx, r.FFmpegPath, full...); err != nil {
			return err
		}

		produced, err := os.ReadFile(outputPath)
		if err != nil {
			return fmt.Errorf("read ffmpeg output: %w", err)
		}
		out = produced
		return nil
	})
	return out, err
}

// ExtractFrames samples up to max frames spread across the clip.
func (r *Runner) ExtractFrames(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error) {
	if max <= 0 {
		return nil, nil
	}

	var frames []image.Image
	err := r.withInputFile(data, func(inputPath string) error {
		outDir, err := os.MkdirTemp(r.TempDir, "frames-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(outDir)

		rate := "1"
		if duration > 0 {
			rate = strconv.FormatFloat(float64(max)/duration, 'f', 4, 64)
		}

		args := []string{
			"-y", "-v", "error",
			"-i", inputPath,
			"-vf", "fps=" + rate,
			"-frames:v", strconv.Itoa(max),
			filepath.Join(outDir, "frame%04d.png"),
		}
		if err := run(ctx, r.FFmpegPath, args...); err != nil {
			return err
		}

		paths, err := filepath.Glob(filepath.Join(outDir, "frame*.png"))
		if err != nil {
			return err
		}
		sort.Strings(paths)
		for _, p := range paths {
			img, err := imaging.Open(p)
			if err != nil {
				return fmt.Errorf("open frame: %w", err)
			}
			frames = append(frames, img)
		}
		return nil
	})
	return frames, err
}

func (r *Runner) withInputFile(data []byte, fn func(path string) error) error {
	f, err := os.CreateTemp(r.TempDir, "media-*")
	if err != nil {
		return fmt.Errorf("create temp input: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp input: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fn(path)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
