package engine

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"mediaCompressor/models"
	"mediaCompressor/worker/codec"
	"mediaCompressor/worker/media"
)

// backgroundSigma smooths block edges of the low-quality background before the
// important crops are pasted over it.
const backgroundSigma = 0.6

func (e *Engine) compressImage(ctx context.Context, j *job) ([]byte, []models.Partition, error) {
	img := j.asset.Image
	if img == nil {
		return nil, nil, errors.New("image asset has no pixels")
	}
	bounds := img.Bounds()
	area := int64(bounds.Dx()) * int64(bounds.Dy())
	quality := j.settings.Quality

	var rects []image.Rectangle
	for _, region := range j.regions {
		if rect := region.Bounds.Intersect(bounds); !rect.Empty() {
			rects = append(rects, rect)
		}
	}
	if len(rects) == 0 {
		j.progress(ProgressEncoding)
		out, partitions, err := uniformImage(ctx, j, area)
		if err != nil {
			return nil, nil, err
		}
		j.progress(ProgressEncoded)
		j.progress(ProgressAssembled)
		return out, partitions, nil
	}

	important, background := e.policy.Qualities(quality)
	j.progress(ProgressEncoding)

	bgData, err := j.c.Encode(ctx, j.asset, codec.Target{Quality: background}, codec.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("encode background with %s: %w", j.c.Name(), err)
	}
	bg, err := j.c.Decode(ctx, bgData)
	if err != nil {
		return nil, nil, fmt.Errorf("decode background: %w", err)
	}
	canvas := imaging.Blur(bg.Image, backgroundSigma)
	j.progress(encodeProgress(1, len(rects)+1))

	var impBytes int
	var impArea int64
	for i, rect := range rects {
		crop := &media.Asset{Kind: models.KindImage, Image: imaging.Crop(img, rect)}
		data, err := j.c.Encode(ctx, crop, codec.Target{Quality: important}, codec.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("encode region %d with %s: %w", i, j.c.Name(), err)
		}
		decoded, err := j.c.Decode(ctx, data)
		if err != nil {
			return nil, nil, fmt.Errorf("decode region %d: %w", i, err)
		}
		canvas = imaging.Paste(canvas, decoded.Image, rect.Min.Sub(bounds.Min))

		impBytes += len(data)
		impArea += int64(rect.Dx()) * int64(rect.Dy())
		j.progress(encodeProgress(i+2, len(rects)+1))
	}
	j.progress(ProgressEncoded)

	// The artifact is one bitstream at the requested quality. The smoothed low-quality
	// background costs fewer bits in it than the original pixels would.
	out, err := j.container.Encode(ctx, &media.Asset{Kind: models.KindImage, Image: canvas}, codec.Target{Quality: quality}, codec.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("reassemble image: %w", err)
	}

	uniform, uniformParts, err := uniformImage(ctx, j, area)
	if err != nil {
		return nil, nil, err
	}
	if len(out) > len(uniform) {
		j.degrade(&Degradation{
			Step:  StepAllocation,
			Cause: fmt.Errorf("partitioned image is %d bytes, uniform encode is %d bytes", len(out), len(uniform)),
		})
		j.progress(ProgressAssembled)
		return uniform, uniformParts, nil
	}
	j.encoded = len(rects)
	j.progress(ProgressAssembled)

	return out, []models.Partition{
		{
			Role:    models.PartitionImportant,
			Codec:   j.c.Name(),
			Quality: important,
			Bytes:   impBytes,
			Area:    impArea,
		},
		{
			Role:    models.PartitionBackground,
			Codec:   j.c.Name(),
			Quality: background,
			Bytes:   len(bgData),
			Area:    area - impArea,
		},
	}, nil
}

func uniformImage(ctx context.Context, j *job, area int64) ([]byte, []models.Partition, error) {
	quality := j.settings.Quality
	out, err := j.c.Encode(ctx, j.asset, codec.Target{Quality: quality}, codec.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("encode image with %s: %w", j.c.Name(), err)
	}
	return out, []models.Partition{{
		Role:    models.PartitionUniform,
		Codec:   j.c.Name(),
		Quality: quality,
		Bytes:   len(out),
		Area:    area,
	}}, nil
}
