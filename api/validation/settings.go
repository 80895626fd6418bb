package validation

import (
	"math"

	"mediaCompressor/models"
)

// Defaults fill settings a client leaves out.
type Defaults struct {
	ImageQuality int
	VideoQuality int
	AudioBitrate float64
}

func DefaultSettings() Defaults {
	return Defaults{ImageQuality: 80, VideoQuality: 50, AudioBitrate: 6.0}
}

// SettingsInput is what a client sent. Nil fields were not supplied.
type SettingsInput struct {
	Quality      *int
	AdaptiveMode *bool
	Bitrate      *float64
}

func ParseKind(s string) (models.MediaKind, error) {
	kind, ok := models.ParseMediaKind(s)
	if !ok {
		return "", ErrUnknownMediaKind
	}
	return kind, nil
}

// Settings validates in for kind and fills in defaults. Adaptive mode defaults to on
// for images and video. Bitrate only applies to audio and is dropped for other kinds.
func (d Defaults) Settings(kind models.MediaKind, in SettingsInput) (models.Settings, error) {
	if _, ok := models.ParseMediaKind(string(kind)); !ok {
		return models.Settings{}, ErrUnknownMediaKind
	}

	s := models.Settings{
		Quality:      d.ImageQuality,
		AdaptiveMode: kind != models.KindAudio,
	}
	if kind == models.KindVideo {
		s.Quality = d.VideoQuality
	}

	if in.Quality != nil {
		s.Quality = *in.Quality
	}
	if s.Quality < models.MinQuality || s.Quality > models.MaxQuality {
		return models.Settings{}, ErrQualityRange
	}

	if in.AdaptiveMode != nil {
		s.AdaptiveMode = *in.AdaptiveMode
	}

	if kind == models.KindAudio {
		s.Bitrate = d.AudioBitrate
		if in.Bitrate != nil {
			s.Bitrate = *in.Bitrate
		}
		if s.Bitrate <= 0 || math.IsNaN(s.Bitrate) || math.IsInf(s.Bitrate, 0) {
			return models.Settings{}, ErrBitrate
		}
	}
	return s, nil
}
