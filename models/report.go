package models

import "image"

// Analysis is the diagnostic record exposed as ai_analysis. It describes what the
// engine actually did, which may differ from the requested settings.
type Analysis struct {
	AdaptiveMode      bool     `json:"adaptive_mode"`
	ImportantRegions  int      `json:"important_regions"`
	NeuralCompression bool     `json:"neural_compression"`
	TargetBitrate     *float64 `json:"target_bitrate,omitempty"`
}

type PartitionRole string

const (
	PartitionUniform    PartitionRole = "uniform"
	PartitionImportant  PartitionRole = "important"
	PartitionBackground PartitionRole = "background"
)

// Partition describes one encoded subset of an asset.
type Partition struct {
	Role    PartitionRole `json:"role"`
	Codec   string        `json:"codec"`
	Quality int           `json:"quality,omitempty"`
	Bitrate float64       `json:"bitrate,omitempty"`
	Bytes   int           `json:"bytes"`
	// Area is pixels for images and video frames, samples for audio.
	Area int64 `json:"area"`
}

type Report struct {
	Analysis     Analysis    `json:"ai_analysis"`
	Partitions   []Partition `json:"partitions,omitempty"`
	Degradations []string    `json:"degradations,omitempty"`
}

func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	if r.Analysis.TargetBitrate != nil {
		v := *r.Analysis.TargetBitrate
		c.Analysis.TargetBitrate = &v
	}
	c.Partitions = append([]Partition(nil), r.Partitions...)
	c.Degradations = append([]string(nil), r.Degradations...)
	return &c
}

// Region is an importance-scored area reported by a region oracle. Spatial media use
// Bounds; audio uses the sample span [Start, End).
type Region struct {
	Label  string
	Bounds image.Rectangle
	Start  int
	End    int
	Score  float64
}
