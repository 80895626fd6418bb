package codec

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

// MinOpusBitrateKbps is the lowest bitrate passed to libopus.
const MinOpusBitrateKbps = 6.0

// Opus encodes PCM into an Ogg/Opus file with ffmpeg.
type Opus struct {
	tools   media.Toolchain
	tempDir string
	logger  *zap.Logger
}

func NewOpus(tools media.Toolchain, tempDir string, logger *zap.Logger) *Opus {
	return &Opus{tools: tools, tempDir: tempDir, logger: logger.Named("opus")}
}

func (c *Opus) Name() string { return "opus" }

func (c *Opus) Neural() bool { return false }

func (c *Opus) Supports(kind models.MediaKind) bool { return kind == models.KindAudio }

func (c *Opus) EffectiveBitrate(kbps float64) float64 {
	return max(kbps, MinOpusBitrateKbps)
}

func (c *Opus) Encode(ctx context.Context, asset *media.Asset, target Target, opts Options) ([]byte, error) {
	if asset.Kind != models.KindAudio || asset.PCM == nil {
		return nil, fmt.Errorf("opus: %s: %w", asset.Kind, ErrUnsupportedKind)
	}

	wavData, err := media.EncodeWAV(asset.PCM, asset.BitDepth, c.tempDir)
	if err != nil {
		return nil, fmt.Errorf("opus: prepare pcm: %w", err)
	}

	kbps := c.EffectiveBitrate(target.BitrateKbps)
	bitrate := strconv.Itoa(int(kbps * 1000))

	out, err := c.tools.Transcode(ctx, wavData, ".ogg",
		"-c:a", "libopus",
		"-b:a", bitrate,
		"-vbr", "on",
		"-application", "audio",
		"-f", "ogg",
	)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}

	c.logger.Debug("Encoded Opus",
		zap.String("bitrate", bitrate),
		zap.Int("samples", asset.Samples()),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

func (c *Opus) Decode(ctx context.Context, data []byte) (*media.Asset, error) {
	wavData, err := c.tools.Transcode(ctx, data, ".wav", "-acodec", "pcm_s16le", "-f", "wav")
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	pcm, bitDepth, err := media.DecodeWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return &media.Asset{Kind: models.KindAudio, Data: data, PCM: pcm, BitDepth: bitDepth}, nil
}
