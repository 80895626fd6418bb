package oracle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-audio/audio"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

// EnergyOracle marks loud passages (speech, transients) of an audio track as important.
// Windows whose RMS exceeds mean+Sensitivity*stddev are joined into spans.
type EnergyOracle struct {
	Window      time.Duration
	MinSpan     time.Duration
	Sensitivity float64
	MaxRegions  int
}

func NewEnergyOracle() *EnergyOracle {
	return &EnergyOracle{
		Window:      50 * time.Millisecond,
		MinSpan:     200 * time.Millisecond,
		Sensitivity: 0.5,
		MaxRegions:  32,
	}
}

func (o *EnergyOracle) Detect(ctx context.Context, asset *media.Asset) ([]models.Region, error) {
	if asset.PCM == nil || asset.PCM.Format == nil || asset.Samples() == 0 {
		return nil, fmt.Errorf("no pcm data: %w", ErrUnsupported)
	}
	return o.DetectPCM(ctx, asset.PCM)
}

func (o *EnergyOracle) DetectPCM(ctx context.Context, buf *audio.IntBuffer) ([]models.Region, error) {
	rate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid pcm format: %w", ErrUnsupported)
	}
	frames := len(buf.Data) / channels

	window := int(float64(rate) * o.Window.Seconds())
	if window < 1 {
		window = 1
	}
	count := (frames + window - 1) / window
	if count < 2 {
		return nil, nil
	}

	rms := make([]float64, count)
	for w := 0; w < count; w++ {
		if w%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		start, end := w*window, min((w+1)*window, frames)
		var sum float64
		for i := start * channels; i < end*channels; i++ {
			v := float64(buf.Data[i])
			sum += v * v
		}
		rms[w] = math.Sqrt(sum / float64((end-start)*channels))
	}

	mean, std := meanStd(rms)
	threshold := mean + o.Sensitivity*std
	if std == 0 {
		return nil, nil
	}
	peak := 0.0
	for _, v := range rms {
		peak = math.Max(peak, v)
	}

	minWindows := int(math.Ceil(o.MinSpan.Seconds() / o.Window.Seconds()))
	var regions []models.Region
	flush := func(first, last int) {
		if last-first+1 < minWindows {
			return
		}
		var sum float64
		for _, v := range rms[first : last+1] {
			sum += v
		}
		score := 0.7 + 0.3*(sum/float64(last-first+1)-threshold)/(peak-threshold)
		regions = append(regions, models.Region{
			Label: "loud",
			Start: first * window,
			End:   min((last+1)*window, frames),
			Score: math.Min(1, math.Max(0.7, score)),
		})
	}

	// A single quiet window between loud ones does not split a span.
	first, last := -1, -1
	for w, v := range rms {
		if v <= threshold {
			continue
		}
		if first >= 0 && w-last > 2 {
			flush(first, last)
			first = -1
		}
		if first < 0 {
			first = w
		}
		last = w
	}
	if first >= 0 {
		flush(first, last)
	}

	regions = topByScore(regions, o.MaxRegions)
	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })
	return regions, nil
}
