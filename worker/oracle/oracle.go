// Package oracle finds regions of a media asset that deserve more bits than the rest.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"time"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

var ErrUnsupported = errors.New("oracle does not support this asset")

type Oracle interface {
	Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, asset *media.Asset) ([]models.Region, error)

func (f Func) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	return f(ctx, asset)
}

// ByKind routes detection to the oracle registered for the asset's media kind.
type ByKind map[models.MediaKind]Oracle

func (b ByKind) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	o, ok := b[asset.Kind]
	if !ok || o == nil {
		return nil, fmt.Errorf("%s: %w", asset.Kind, ErrUnsupported)
	}
	return o.Detect(ctx, asset)
}

type timeoutOracle struct {
	next    Oracle
	timeout time.Duration
}

// WithTimeout bounds detection time. The result is abandoned when the deadline passes
// even if the wrapped oracle ignores its context.
func WithTimeout(next Oracle, timeout time.Duration) Oracle {
	if timeout <= 0 {
		return next
	}
	return &timeoutOracle{next: next, timeout: timeout}
}

func (o *timeoutOracle) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		regions []models.Region
		err     error
	}
	done := make(chan result, 1)
	go func() {
		regions, err := o.next.Detect(ctx, asset)
		done <- result{regions, err}
	}()

	select {
	case r := <-done:
		return r.regions, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("region detection: %w", ctx.Err())
	}
}

// mergeRects unions overlapping rectangles until no two overlap, keeping the highest
// score of each merged group.
func mergeRects(regions []models.Region) []models.Region {
	out := append([]models.Region(nil), regions...)
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out) && !merged; i++ {
			for j := i + 1; j < len(out); j++ {
				if !out[i].Bounds.Overlaps(out[j].Bounds) {
					continue
				}
				out[i].Bounds = out[i].Bounds.Union(out[j].Bounds)
				if out[j].Score > out[i].Score {
					out[i].Score = out[j].Score
				}
				out = append(out[:j], out[j+1:]...)
				merged = true
				break
			}
		}
	}
	return out
}

func topByScore(regions []models.Region, max int) []models.Region {
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].Score > regions[j].Score })
	if max > 0 && len(regions) > max {
		regions = regions[:max]
	}
	return regions
}

func scaleRect(r image.Rectangle, sx, sy float64, limit image.Rectangle) image.Rectangle {
	out := image.Rect(
		int(float64(r.Min.X)*sx),
		int(float64(r.Min.Y)*sy),
		int(float64(r.Max.X)*sx+0.5),
		int(float64(r.Max.Y)*sy+0.5),
	)
	return out.Intersect(limit)
}
