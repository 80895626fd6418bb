package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/go-audio/audio"

	"mediaCompressor/models"
	"mediaCompressor/worker/ffmpeg"
)

// ErrUnreadable marks input that cannot be decoded as the declared media kind.
var ErrUnreadable = errors.New("unreadable media")

// Asset is a decoded media file. Data always holds the original encoded bytes; the
// decoded representation depends on Kind.
type Asset struct {
	Kind models.MediaKind
	Data []byte

	// Image is set for images.
	Image image.Image

	// PCM is set for audio. Containers other than WAV are converted to 16-bit PCM.
	PCM      *audio.IntBuffer
	BitDepth int

	// Probe is set for video and for audio that is not WAV.
	Probe *ffmpeg.ProbeInfo
}

// Samples returns the number of PCM frames (samples per channel).
func (a *Asset) Samples() int {
	if a.PCM == nil || a.PCM.Format == nil || a.PCM.Format.NumChannels == 0 {
		return 0
	}
	return len(a.PCM.Data) / a.PCM.Format.NumChannels
}

// Toolchain is the subset of the ffmpeg runner the decoder needs.
type Toolchain interface {
	Probe(ctx context.Context, data []byte) (*ffmpeg.ProbeInfo, error)
	Transcode(ctx context.Context, data []byte, outputExt string, args ...string) ([]byte, error)
}

// Decoder turns uploaded bytes into assets.
type Decoder struct {
	tools Toolchain
}

// NewDecoder creates a decoder. tools may be nil, in which case only images and WAV
// audio can be decoded.
func NewDecoder(tools Toolchain) *Decoder {
	return &Decoder{tools: tools}
}

func (d *Decoder) Decode(ctx context.Context, kind models.MediaKind, data []byte) (*Asset, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input: %w", ErrUnreadable)
	}

	switch kind {
	case models.KindImage:
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("decode image: %v: %w", err, ErrUnreadable)
		}
		return &Asset{Kind: kind, Data: data, Image: img}, nil

	case models.KindAudio:
		if IsWAV(data) {
			pcm, bitDepth, err := DecodeWAV(data)
			if err != nil {
				return nil, fmt.Errorf("decode wav: %v: %w", err, ErrUnreadable)
			}
			return &Asset{Kind: kind, Data: data, PCM: pcm, BitDepth: bitDepth}, nil
		}
		info, err := d.probe(ctx, data)
		if err != nil {
			return nil, err
		}
		if !info.HasStream("audio") {
			return nil, fmt.Errorf("no audio stream: %w", ErrUnreadable)
		}
		wavData, err := d.tools.Transcode(ctx, data, ".wav", "-vn", "-acodec", "pcm_s16le", "-f", "wav")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("convert to pcm: %v: %w", err, ErrUnreadable)
		}
		pcm, bitDepth, err := DecodeWAV(wavData)
		if err != nil {
			return nil, fmt.Errorf("decode converted pcm: %v: %w", err, ErrUnreadable)
		}
		return &Asset{Kind: kind, Data: data, PCM: pcm, BitDepth: bitDepth, Probe: info}, nil

	case models.KindVideo:
		info, err := d.probe(ctx, data)
		if err != nil {
			return nil, err
		}
		if !info.HasStream("video") {
			return nil, fmt.Errorf("no video stream: %w", ErrUnreadable)
		}
		return &Asset{Kind: kind, Data: data, Probe: info}, nil
	}

	return nil, fmt.Errorf("unsupported media kind %q: %w", kind, ErrUnreadable)
}

func (d *Decoder) probe(ctx context.Context, data []byte) (*ffmpeg.ProbeInfo, error) {
	if d.tools == nil {
		return nil, fmt.Errorf("no ffmpeg toolchain configured: %w", ErrUnreadable)
	}
	info, err := d.tools.Probe(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("probe: %v: %w", err, ErrUnreadable)
	}
	return info, nil
}
