package oracle

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/go-audio/audio"

	"mediaCompressor/models"
	"mediaCompressor/worker/ffmpeg"
	"mediaCompressor/worker/media"
)

// detailedImage returns a flat white canvas with a fine checkerboard inside patch.
func detailedImage(width, height int, patches ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	for _, patch := range patches {
		for y := patch.Min.Y; y < patch.Max.Y; y++ {
			for x := patch.Min.X; x < patch.Max.X; x++ {
				if (x/2+y/2)%2 == 0 {
					img.Set(x, y, color.Black)
				}
			}
		}
	}
	return img
}

func TestEdgeOracle_FindsDetailedPatch(t *testing.T) {
	img := detailedImage(320, 240, image.Rect(100, 80, 220, 140))

	regions, err := NewEdgeOracle().DetectImage(context.Background(), img)
	if err != nil {
		t.Fatalf("DetectImage failed: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region, got %d: %+v", len(regions), regions)
	}
	r := regions[0]
	if !image.Pt(160, 110).In(r.Bounds) {
		t.Errorf("Region %v does not cover the patch centre", r.Bounds)
	}
	if r.Score < 0.7 || r.Score > 1 {
		t.Errorf("Score %f outside [0.7, 1]", r.Score)
	}
}

func TestEdgeOracle_FlatImageHasNoRegions(t *testing.T) {
	regions, err := NewEdgeOracle().DetectImage(context.Background(), detailedImage(320, 240))
	if err != nil {
		t.Fatalf("DetectImage failed: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("Expected no regions, got %+v", regions)
	}
}

func TestEdgeOracle_RejectsAssetWithoutImage(t *testing.T) {
	_, err := NewEdgeOracle().Detect(context.Background(), &media.Asset{Kind: models.KindImage})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestEnergyOracle_FindsLoudSpan(t *testing.T) {
	const rate = 8000
	data := make([]int, 2*rate)
	for i := range data {
		amp := 100.0
		if i >= rate/2 && i < rate {
			amp = 10000
		}
		data[i] = int(amp * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: rate}, Data: data, SourceBitDepth: 16}

	regions, err := NewEnergyOracle().Detect(context.Background(), &media.Asset{Kind: models.KindAudio, PCM: buf})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("Expected 1 region, got %+v", regions)
	}
	if regions[0].Start != rate/2 || regions[0].End != rate {
		t.Errorf("Expected span [%d, %d), got [%d, %d)", rate/2, rate, regions[0].Start, regions[0].End)
	}
	if regions[0].Score < 0.95 {
		t.Errorf("Expected a near-maximal score for the only loud span, got %f", regions[0].Score)
	}
}

func TestEnergyOracle_ConstantSignalHasNoRegions(t *testing.T) {
	data := make([]int, 8000)
	for i := range data {
		data[i] = 500
	}
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: 1, SampleRate: 8000}, Data: data}

	regions, err := NewEnergyOracle().DetectPCM(context.Background(), buf)
	if err != nil {
		t.Fatalf("DetectPCM failed: %v", err)
	}
	if len(regions) != 0 {
		t.Errorf("Expected no regions, got %+v", regions)
	}
}

type mockSampler struct {
	ExtractFramesFunc func(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error)
}

func (m *mockSampler) ExtractFrames(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error) {
	return m.ExtractFramesFunc(ctx, data, duration, max)
}

func TestFrameOracle_UnionsAcrossFrames(t *testing.T) {
	sampler := &mockSampler{
		ExtractFramesFunc: func(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error) {
			if max != 4 {
				t.Errorf("Expected 4 frames requested, got %d", max)
			}
			return []image.Image{
				detailedImage(320, 240, image.Rect(100, 80, 220, 140)),
				detailedImage(320, 240, image.Rect(110, 90, 230, 150)),
			}, nil
		},
	}

	asset := &media.Asset{Kind: models.KindVideo, Data: []byte("v"), Probe: &ffmpeg.ProbeInfo{Duration: 2}}
	regions, err := NewFrameOracle(sampler, nil, 0).Detect(context.Background(), asset)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("Expected overlapping detections to merge into 1 region, got %+v", regions)
	}
	if !image.Pt(105, 85).In(regions[0].Bounds) || !image.Pt(225, 145).In(regions[0].Bounds) {
		t.Errorf("Merged region %v does not cover both detections", regions[0].Bounds)
	}
}

func TestFrameOracle_SamplerError(t *testing.T) {
	sampler := &mockSampler{
		ExtractFramesFunc: func(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error) {
			return nil, errors.New("ffmpeg exploded")
		},
	}
	asset := &media.Asset{Kind: models.KindVideo, Probe: &ffmpeg.ProbeInfo{}}
	if _, err := NewFrameOracle(sampler, nil, 2).Detect(context.Background(), asset); err == nil {
		t.Error("Expected sampler error to propagate")
	}
}

func TestWithTimeout_AbandonsStuckOracle(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := Func(func(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
		<-release
		return []models.Region{{Label: "late"}}, nil
	})

	start := time.Now()
	_, err := WithTimeout(stuck, 20*time.Millisecond).Detect(context.Background(), &media.Asset{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Timeout took %v", elapsed)
	}
}

func TestByKind_Unsupported(t *testing.T) {
	set := ByKind{models.KindImage: NewEdgeOracle()}
	_, err := set.Detect(context.Background(), &media.Asset{Kind: models.KindAudio})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}
