package oracle

import (
	"context"
	"fmt"
	"image"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

type FrameSampler interface {
	ExtractFrames(ctx context.Context, data []byte, duration float64, max int) ([]image.Image, error)
}

// FrameOracle runs the edge oracle over frames sampled across a video and unions the
// regions into rectangles that hold for the whole clip.
type FrameOracle struct {
	sampler FrameSampler
	edges   *EdgeOracle
	frames  int
}

func NewFrameOracle(sampler FrameSampler, edges *EdgeOracle, frames int) *FrameOracle {
	if edges == nil {
		edges = NewEdgeOracle()
	}
	if frames <= 0 {
		frames = 4
	}
	return &FrameOracle{sampler: sampler, edges: edges, frames: frames}
}

func (o *FrameOracle) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	if asset.Probe == nil {
		return nil, fmt.Errorf("video not probed: %w", ErrUnsupported)
	}

	frames, err := o.sampler.ExtractFrames(ctx, asset.Data, asset.Probe.Duration, o.frames)
	if err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, nil
	}

	var all []models.Region
	for _, frame := range frames {
		regions, err := o.edges.DetectImage(ctx, frame)
		if err != nil {
			return nil, err
		}
		all = append(all, regions...)
	}
	return topByScore(mergeRects(all), o.edges.MaxRegions), nil
}
