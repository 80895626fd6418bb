package engine

import (
	"context"
	"fmt"
	"image"

	"mediaCompressor/models"
	"mediaCompressor/worker/codec"
)

// compressVideo makes a single encoder pass. Regions are passed as ROI hints, so the
// stream cannot be split by partition and its bytes are attributed to the background.
func (e *Engine) compressVideo(ctx context.Context, j *job) ([]byte, []models.Partition, error) {
	var frame image.Rectangle
	if j.asset.Probe != nil {
		if v, ok := j.asset.Probe.Video(); ok {
			frame = image.Rect(0, 0, v.Width, v.Height)
		}
	}
	area := int64(frame.Dx()) * int64(frame.Dy())
	quality := j.settings.Quality

	// Without a probed frame size every region is passed through as a hint.
	var regions []models.Region
	var impArea int64
	for _, r := range j.regions {
		b := r.Bounds
		if !frame.Empty() {
			b = b.Intersect(frame)
		}
		if b.Empty() {
			continue
		}
		r.Bounds = b
		regions = append(regions, r)
		impArea += int64(b.Dx()) * int64(b.Dy())
	}

	if len(regions) == 0 {
		j.progress(ProgressEncoding)
		out, err := j.c.Encode(ctx, j.asset, codec.Target{Quality: quality}, codec.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("encode video with %s: %w", j.c.Name(), err)
		}
		j.progress(ProgressEncoded)
		j.progress(ProgressAssembled)
		return out, []models.Partition{{
			Role:    models.PartitionUniform,
			Codec:   j.c.Name(),
			Quality: quality,
			Bytes:   len(out),
			Area:    area,
		}}, nil
	}

	important, background := e.policy.Qualities(quality)

	j.progress(ProgressEncoding)
	out, err := j.c.Encode(ctx, j.asset, codec.Target{Quality: background}, codec.Options{
		Regions:       regions,
		RegionQuality: important,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode video with %s: %w", j.c.Name(), err)
	}
	j.progress(ProgressEncoded)
	j.progress(ProgressAssembled)
	j.encoded = len(regions)

	return out, []models.Partition{
		{Role: models.PartitionImportant, Codec: j.c.Name(), Quality: important, Area: impArea},
		{Role: models.PartitionBackground, Codec: j.c.Name(), Quality: background, Bytes: len(out), Area: max(area-impArea, 0)},
	}, nil
}
