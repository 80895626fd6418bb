package codec

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

// X264 re-encodes video to H.264/AAC in MP4. Regions become addroi filters, so the
// important areas get a lower quantizer inside the same stream.
type X264 struct {
	tools  media.Toolchain
	logger *zap.Logger
}

func NewX264(tools media.Toolchain, logger *zap.Logger) *X264 {
	return &X264{tools: tools, logger: logger.Named("x264")}
}

func (c *X264) Name() string { return "x264" }

func (c *X264) Neural() bool { return false }

func (c *X264) Supports(kind models.MediaKind) bool { return kind == models.KindVideo }

// CRF maps quality onto x264's constant rate factor, where lower is better.
func CRF(quality int) int {
	return int(51 - float64(clampQuality(quality))*0.5)
}

func (c *X264) Encode(ctx context.Context, asset *media.Asset, target Target, opts Options) ([]byte, error) {
	if asset.Kind != models.KindVideo {
		return nil, fmt.Errorf("x264: %s: %w", asset.Kind, ErrUnsupportedKind)
	}

	crf := CRF(target.Quality)
	filters := []string{"scale=trunc(iw/2)*2:trunc(ih/2)*2"}
	filters = append(filters, roiFilters(opts, target.Quality)...)

	args := []string{
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(crf),
		"-pix_fmt", "yuv420p",
		"-vf", strings.Join(filters, ","),
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
	}
	out, err := c.tools.Transcode(ctx, asset.Data, ".mp4", args...)
	if err != nil {
		return nil, fmt.Errorf("x264 encode: %w", err)
	}

	c.logger.Debug("Encoded H.264",
		zap.Int("crf", crf),
		zap.Int("regions", len(opts.Regions)),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

// roiFilters turns regions into addroi filters. qoffset is negative for better
// quality, bounded at -1.
func roiFilters(opts Options, quality int) []string {
	if len(opts.Regions) == 0 || opts.RegionQuality <= quality {
		return nil
	}
	qoffset := -float64(opts.RegionQuality-quality) / 100
	if qoffset < -1 {
		qoffset = -1
	}

	filters := make([]string, 0, len(opts.Regions))
	for _, r := range opts.Regions {
		b := r.Bounds
		if b.Empty() {
			continue
		}
		filters = append(filters, fmt.Sprintf("addroi=x=%d:y=%d:w=%d:h=%d:qoffset=%.2f",
			b.Min.X, b.Min.Y, b.Dx(), b.Dy(), qoffset))
	}
	return filters
}

func (c *X264) Decode(ctx context.Context, data []byte) (*media.Asset, error) {
	info, err := c.tools.Probe(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("x264 decode: %w", err)
	}
	if !info.HasStream("video") {
		return nil, fmt.Errorf("x264 decode: no video stream: %w", media.ErrUnreadable)
	}
	return &media.Asset{Kind: models.KindVideo, Data: data, Probe: info}, nil
}
