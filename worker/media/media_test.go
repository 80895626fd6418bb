package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/go-audio/audio"

	"mediaCompressor/models"
	"mediaCompressor/worker/ffmpeg"
)

func encodePNG(t *testing.T, width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func sineBuffer(frames, sampleRate int) *audio.IntBuffer {
	data := make([]int, frames)
	for i := range data {
		data[i] = int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

type stubTools struct {
	info      *ffmpeg.ProbeInfo
	err       error
	transcode func(data []byte, ext string, args ...string) ([]byte, error)
}

func (s *stubTools) Probe(ctx context.Context, data []byte) (*ffmpeg.ProbeInfo, error) {
	return s.info, s.err
}

func (s *stubTools) Transcode(ctx context.Context, data []byte, ext string, args ...string) ([]byte, error) {
	if s.transcode == nil {
		return nil, errors.New("transcode not stubbed")
	}
	return s.transcode(data, ext, args...)
}

func TestDecoder_Image(t *testing.T) {
	d := NewDecoder(nil)
	asset, err := d.Decode(context.Background(), models.KindImage, encodePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if asset.Image.Bounds().Dx() != 64 || asset.Image.Bounds().Dy() != 48 {
		t.Errorf("Expected 64x48, got %v", asset.Image.Bounds())
	}
}

func TestDecoder_CorruptImage(t *testing.T) {
	d := NewDecoder(nil)
	_, err := d.Decode(context.Background(), models.KindImage, []byte("definitely not an image"))
	if !errors.Is(err, ErrUnreadable) {
		t.Errorf("Expected ErrUnreadable, got %v", err)
	}
}

func TestDecoder_EmptyInput(t *testing.T) {
	d := NewDecoder(nil)
	if _, err := d.Decode(context.Background(), models.KindAudio, nil); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Expected ErrUnreadable, got %v", err)
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	buf := sineBuffer(8000, 8000)
	data, err := EncodeWAV(buf, 16, t.TempDir())
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if !IsWAV(data) {
		t.Fatal("Encoded data lacks RIFF/WAVE signature")
	}

	d := NewDecoder(nil)
	asset, err := d.Decode(context.Background(), models.KindAudio, data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if asset.Samples() != 8000 {
		t.Errorf("Expected 8000 samples, got %d", asset.Samples())
	}
	if asset.PCM.Format.SampleRate != 8000 {
		t.Errorf("Expected sample rate 8000, got %d", asset.PCM.Format.SampleRate)
	}
}

func TestDecoder_VideoNeedsVideoStream(t *testing.T) {
	d := NewDecoder(&stubTools{info: &ffmpeg.ProbeInfo{Streams: []ffmpeg.Stream{{CodecType: "audio"}}}})
	if _, err := d.Decode(context.Background(), models.KindVideo, []byte("x")); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Expected ErrUnreadable, got %v", err)
	}

	d = NewDecoder(&stubTools{info: &ffmpeg.ProbeInfo{Streams: []ffmpeg.Stream{{CodecType: "video", Width: 320, Height: 240}}}})
	asset, err := d.Decode(context.Background(), models.KindVideo, []byte("x"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v, ok := asset.Probe.Video(); !ok || v.Width != 320 {
		t.Errorf("Expected probed video stream, got %+v", asset.Probe)
	}
}

func TestSlice(t *testing.T) {
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 2, SampleRate: 10}, Data: []int{1, 2, 3, 4, 5, 6, 7, 8}}
	part := Slice(buf, 1, 3)
	want := []int{3, 4, 5, 6}
	if len(part.Data) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(part.Data))
	}
	for i := range want {
		if part.Data[i] != want[i] {
			t.Errorf("Index %d: expected %d, got %d", i, want[i], part.Data[i])
		}
	}
}

func TestDecoder_AudioConvertedToPCM(t *testing.T) {
	wavData, err := EncodeWAV(sineBuffer(4000, 8000), 16, t.TempDir())
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	var gotExt string
	d := NewDecoder(&stubTools{
		info: &ffmpeg.ProbeInfo{Streams: []ffmpeg.Stream{{CodecType: "audio"}}},
		transcode: func(data []byte, ext string, args ...string) ([]byte, error) {
			gotExt = ext
			return wavData, nil
		},
	})
	asset, err := d.Decode(context.Background(), models.KindAudio, []byte("OggS-not-really"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if gotExt != ".wav" {
		t.Errorf("Expected conversion to .wav, got %q", gotExt)
	}
	if asset.Samples() != 4000 {
		t.Errorf("Expected 4000 samples, got %d", asset.Samples())
	}
}
