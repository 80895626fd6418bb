// Package app assembles the compression worker from configuration. The worker binary
// and the API's standalone mode both run it.
package app

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediaCompressor/backend"
	"mediaCompressor/models"
	"mediaCompressor/queue"
	"mediaCompressor/worker/codec"
	"mediaCompressor/worker/config"
	"mediaCompressor/worker/engine"
	"mediaCompressor/worker/ffmpeg"
	"mediaCompressor/worker/media"
	"mediaCompressor/worker/oracle"
	"mediaCompressor/worker/pool"
	"mediaCompressor/worker/reaper"
	"mediaCompressor/worker/service"
)

type Worker struct {
	processor *service.Processor
	pool      *pool.WorkerPool
	reaper    *reaper.Reaper
	logger    *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, b *backend.Backends, logger *zap.Logger) *Worker {
	runner := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath, cfg.TempDir)
	if !runner.Available() {
		logger.Warn("ffmpeg not found, only images and WAV audio can be processed",
			zap.String("ffmpeg", cfg.FFmpegPath),
			zap.String("ffprobe", cfg.FFprobePath),
		)
	}

	codecs := NewCodecs(ctx, cfg, runner, logger)

	edges := oracle.NewEdgeOracle()
	regions := oracle.WithTimeout(oracle.ByKind{
		models.KindImage: edges,
		models.KindAudio: oracle.NewEnergyOracle(),
		models.KindVideo: oracle.NewFrameOracle(runner, edges, 0),
	}, cfg.OracleTimeout)

	eng := engine.New(codecs, regions, cfg.Policy, logger)

	// A nil *cache.StatusCache must not become a non-nil interface.
	var (
		processorCache service.StatusCache
		reaperCache    reaper.StatusCache
	)
	if b.Cache != nil {
		processorCache = b.Cache
		reaperCache = b.Cache
	}

	processor := service.NewProcessor(b.Repo, b.Inputs, b.Results, processorCache, service.Pipeline{
		Decoder:       media.NewDecoder(runner),
		Compressor:    eng,
		MaxProcessing: cfg.MaxProcessing,
		Heartbeat:     cfg.WorkerLease / 3,
	}, logger)

	r := reaper.New(b.Repo, b.Inputs, b.Results, reaperCache, reaper.Config{
		Interval:  cfg.ReapInterval,
		Lease:     cfg.WorkerLease,
		Retention: cfg.Retention,
	}, logger)

	return &Worker{
		processor: processor,
		pool:      pool.NewWorkerPool(cfg.WorkerCount, logger),
		reaper:    r,
		logger:    logger,
	}
}

// NewCodecs registers the conventional codecs and, when an inference endpoint is
// configured and healthy, the learned ones. A learned codec that cannot be built is
// logged and skipped.
func NewCodecs(ctx context.Context, cfg *config.Config, tools media.Toolchain, logger *zap.Logger) *codec.Registry {
	registry := codec.NewRegistry()

	jpeg := codec.NewJPEG(logger)
	opus := codec.NewOpus(tools, cfg.TempDir, logger)
	registry.Register(jpeg)
	registry.Register(opus)
	registry.Register(codec.NewX264(tools, logger))

	for kind, prefer := range cfg.Neural.Prefer {
		if k, ok := models.ParseMediaKind(kind); ok {
			registry.PreferNeural(k, prefer)
		} else {
			logger.Warn("Ignoring neural preference for unknown media kind", zap.String("kind", kind))
		}
	}

	client := codec.NewInferenceClient(cfg.Neural.Endpoint, cfg.Neural.Timeout)
	if !client.Enabled() {
		logger.Info("No inference endpoint configured, using conventional codecs only")
		return registry
	}

	learned := []struct {
		kind      models.MediaKind
		model     string
		container codec.Codec
	}{
		{models.KindImage, cfg.Neural.ImageModel, jpeg},
		{models.KindAudio, cfg.Neural.AudioModel, opus},
	}
	for _, l := range learned {
		c, err := codec.NewNeural(ctx, l.kind, l.model, client, l.container, cfg.TempDir, logger)
		if err != nil {
			logger.Warn("Neural codec unavailable, falling back to conventional",
				zap.String("media_kind", string(l.kind)),
				zap.String("model", l.model),
				zap.Error(err),
			)
			continue
		}
		registry.Register(c)
		logger.Info("Neural codec registered",
			zap.String("media_kind", string(l.kind)),
			zap.String("model", l.model),
		)
	}
	return registry
}

// Process runs one task to completion on the calling goroutine.
func (w *Worker) Process(ctx context.Context, msg *queue.TaskMessage) error {
	return w.processor.Process(ctx, msg)
}

// Run consumes tasks through the pool and runs the reaper until ctx ends. In-flight
// tasks are waited for before Run returns.
func (w *Worker) Run(ctx context.Context, consumer queue.Consumer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// A closed queue ends the reaper too.
		defer cancel()
		return consumer.Consume(ctx, w.pool.Handler(w.processor.Process))
	})
	g.Go(func() error {
		return w.reaper.Run(ctx)
	})

	w.logger.Info("Worker started")
	err := g.Wait()
	w.pool.Wait()
	w.logger.Info("Worker stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
