// Package engine turns a decoded asset and its settings into one compressed artifact,
// spending more bits on the regions an oracle marks as important.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mediaCompressor/metrics"
	"mediaCompressor/models"
	"mediaCompressor/worker/codec"
	"mediaCompressor/worker/media"
	"mediaCompressor/worker/oracle"
)

// Progress milestones reported while a task is processing.
const (
	ProgressClaimed   = 10
	ProgressDecoded   = 20
	ProgressAnalyzed  = 35
	ProgressEncoding  = 45
	ProgressEncoded   = 80
	ProgressAssembled = 95
)

type ProgressFunc func(progress int)

type Engine struct {
	codecs *codec.Registry
	oracle oracle.Oracle
	policy Policy
	logger *zap.Logger
}

// New creates an engine. regions may be nil, in which case adaptive requests always
// take the uniform path.
func New(codecs *codec.Registry, regions oracle.Oracle, policy Policy, logger *zap.Logger) *Engine {
	return &Engine{
		codecs: codecs,
		oracle: regions,
		policy: policy.Normalize(),
		logger: logger.Named("engine"),
	}
}

// job is one compression run. c is the codec for the partitions, container the
// conventional codec for the final artifact. A strategy sets encoded to the number of
// regions that made it into the artifact.
type job struct {
	asset     *media.Asset
	settings  models.Settings
	regions   []models.Region
	c         codec.Codec
	container codec.Codec
	progress  ProgressFunc
	degrade   func(d *Degradation)
	encoded   int
}

type strategy func(ctx context.Context, j *job) ([]byte, []models.Partition, error)

func (e *Engine) Compress(ctx context.Context, asset *media.Asset, settings models.Settings, progress ProgressFunc) ([]byte, *models.Report, error) {
	if progress == nil {
		progress = func(int) {}
	}
	logger := e.logger.With(zap.String("media_kind", string(asset.Kind)))

	var run strategy
	switch asset.Kind {
	case models.KindImage:
		run = e.compressImage
	case models.KindAudio:
		run = e.compressAudio
	case models.KindVideo:
		run = e.compressVideo
	default:
		return nil, nil, fmt.Errorf("unsupported media kind %q", asset.Kind)
	}

	sel, err := e.codecs.Select(asset.Kind, settings.AdaptiveMode)
	if err != nil {
		return nil, nil, err
	}

	report := &models.Report{}
	degrade := func(d *Degradation) {
		report.Degradations = append(report.Degradations, d.String())
		metrics.IncDegradation(string(asset.Kind), string(d.Step))
		logger.Warn("Adaptive step degraded",
			zap.String("step", string(d.Step)),
			zap.Error(d.Cause),
		)
	}

	var regions []models.Region
	if settings.AdaptiveMode {
		var d *Degradation
		regions, d = e.detect(ctx, asset)
		if d != nil {
			degrade(d)
		}
	}
	progress(ProgressAnalyzed)

	j := &job{
		asset:     asset,
		settings:  settings,
		regions:   regions,
		c:         sel.Primary,
		container: sel.Conventional(),
		progress:  progress,
		degrade:   degrade,
	}

	out, partitions, err := run(ctx, j)
	if err != nil && sel.Primary.Neural() && sel.Fallback != nil && ctx.Err() == nil {
		degrade(&Degradation{Step: StepNeural, Cause: err})
		j.c = sel.Fallback
		j.encoded = 0
		out, partitions, err = run(ctx, j)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, nil, err
	}

	report.Partitions = partitions
	report.Analysis = models.Analysis{
		AdaptiveMode:      j.encoded > 0,
		ImportantRegions:  j.encoded,
		NeuralCompression: j.c.Neural(),
	}
	if asset.Kind == models.KindAudio {
		bitrate := codec.EffectiveBitrate(j.c, settings.Bitrate)
		report.Analysis.TargetBitrate = &bitrate
	}
	metrics.IncCodecUsed(string(asset.Kind), j.c.Name())

	logger.Info("Compression finished",
		zap.String("codec", j.c.Name()),
		zap.Int("important_regions", j.encoded),
		zap.Int("input_bytes", len(asset.Data)),
		zap.Int("output_bytes", len(out)),
		zap.Int("degradations", len(report.Degradations)),
	)
	return out, report, nil
}

// detect runs the oracle. Any failure yields zero regions and a degradation; an empty
// result is a normal outcome.
func (e *Engine) detect(ctx context.Context, asset *media.Asset) ([]models.Region, *Degradation) {
	if e.oracle == nil {
		return nil, &Degradation{Step: StepOracle, Cause: errors.New("no region oracle configured")}
	}

	regions, err := e.oracle.Detect(ctx, asset)
	if err != nil {
		return nil, &Degradation{Step: StepOracle, Cause: err}
	}
	return regions, nil
}

// encodeProgress spreads partition progress between the encoding milestones.
func encodeProgress(done, total int) int {
	if total <= 0 {
		return ProgressEncoded
	}
	return ProgressEncoding + (ProgressEncoded-ProgressEncoding)*done/total
}
