package engine

import "mediaCompressor/models"

// Policy splits a requested operating point between important and background
// partitions.
type Policy struct {
	// ImportantBoost is added to the requested quality for important regions.
	ImportantBoost int `yaml:"important_boost"`
	// BackgroundPenalty is subtracted from the requested quality for the background.
	BackgroundPenalty int `yaml:"background_penalty"`
	// BitrateBoost multiplies the requested audio bitrate for important spans.
	BitrateBoost float64 `yaml:"bitrate_boost"`
}

func DefaultPolicy() Policy {
	return Policy{
		ImportantBoost:    15,
		BackgroundPenalty: 10,
		BitrateBoost:      1.5,
	}
}

// Normalize replaces values that would invert the allocation with neutral ones.
func (p Policy) Normalize() Policy {
	if p.ImportantBoost < 0 {
		p.ImportantBoost = 0
	}
	if p.BackgroundPenalty < 0 {
		p.BackgroundPenalty = 0
	}
	if p.BitrateBoost < 1 {
		p.BitrateBoost = 1
	}
	return p
}

// Qualities returns the important and background quality for a requested quality.
// Both stay within [1, MaxQuality] and important is never below background.
func (p Policy) Qualities(quality int) (important, background int) {
	p = p.Normalize()
	return clamp(quality+p.ImportantBoost, 1, models.MaxQuality), clamp(quality-p.BackgroundPenalty, 1, models.MaxQuality)
}

func (p Policy) Bitrates(kbps float64) (important, background float64) {
	p = p.Normalize()
	return kbps * p.BitrateBoost, kbps
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
