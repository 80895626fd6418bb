package codec

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

type JPEG struct {
	logger *zap.Logger
}

func NewJPEG(logger *zap.Logger) *JPEG {
	return &JPEG{logger: logger.Named("jpeg")}
}

func (c *JPEG) Name() string { return "jpeg" }

func (c *JPEG) Neural() bool { return false }

func (c *JPEG) Supports(kind models.MediaKind) bool { return kind == models.KindImage }

func (c *JPEG) Encode(ctx context.Context, asset *media.Asset, target Target, opts Options) ([]byte, error) {
	if asset.Kind != models.KindImage || asset.Image == nil {
		return nil, fmt.Errorf("jpeg: %s: %w", asset.Kind, ErrUnsupportedKind)
	}

	quality := clampQuality(target.Quality)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, asset.Image, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		c.logger.Error("Failed to encode JPEG",
			zap.Int("quality", quality),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	c.logger.Debug("Encoded JPEG",
		zap.Int("quality", quality),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

func (c *JPEG) Decode(ctx context.Context, data []byte) (*media.Asset, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return &media.Asset{Kind: models.KindImage, Data: data, Image: img}, nil
}
