// Package codec holds the encoders the engine can compress partitions with. Every codec
// produces a complete, independently decodable file.
package codec

import (
	"context"
	"errors"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

var (
	ErrUnsupportedKind = errors.New("codec does not support media kind")
	ErrNoCodec         = errors.New("no codec registered for media kind")
)

// Target is the operating point for one encode. Quality drives images and video,
// BitrateKbps drives audio.
type Target struct {
	Quality     int
	BitrateKbps float64
}

// Options carries hints that only some codecs honour.
type Options struct {
	// Regions are areas to encode at RegionQuality instead of Target.Quality.
	Regions       []models.Region
	RegionQuality int
}

type Codec interface {
	Name() string
	Neural() bool
	Supports(kind models.MediaKind) bool
	Encode(ctx context.Context, asset *media.Asset, target Target, opts Options) ([]byte, error)
	Decode(ctx context.Context, data []byte) (*media.Asset, error)
}

// bitrateFloor is implemented by codecs that raise bitrates below what they can encode.
type bitrateFloor interface {
	EffectiveBitrate(kbps float64) float64
}

// EffectiveBitrate is the bitrate c actually encodes at when asked for kbps.
func EffectiveBitrate(c Codec, kbps float64) float64 {
	if f, ok := c.(bitrateFloor); ok {
		return f.EffectiveBitrate(kbps)
	}
	return kbps
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
