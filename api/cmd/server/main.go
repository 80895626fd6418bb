package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediaCompressor/api/config"
	"mediaCompressor/api/handlers"
	"mediaCompressor/api/kafka"
	"mediaCompressor/api/service"
	"mediaCompressor/api/validation"
	"mediaCompressor/backend"
	"mediaCompressor/metrics"
	"mediaCompressor/queue"
	"mediaCompressor/worker/app"
	workerconfig "mediaCompressor/worker/config"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	if cfg.Env == "development" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("API Service starting",
		zap.String("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("queue_backend", cfg.QueueBackend),
	)

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := backend.Open(ctx, cfg.Backend, logger)
	if err != nil {
		logger.Fatal("Failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	g, gctx := errgroup.WithContext(ctx)

	var publisher queue.Publisher
	if cfg.Standalone() {
		local := queue.NewLocal(0)
		publisher = local

		wcfg, err := workerconfig.Load()
		if err != nil {
			logger.Fatal("Invalid worker configuration", zap.Error(err))
		}
		worker := app.New(ctx, wcfg, backends, logger.Named("worker"))
		g.Go(func() error {
			return worker.Run(gctx, local)
		})
		logger.Info("Running in standalone mode with in-process workers", zap.Int("workers", wcfg.WorkerCount))
	} else {
		publisher, err = kafka.NewProducer(cfg.Brokers(), cfg.KafkaTopic)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
	}
	defer publisher.Close()

	var statusCache service.StatusCache
	if backends.Cache != nil {
		statusCache = backends.Cache
	}

	svc := service.NewTaskService(backends.Repo, backends.Inputs, backends.Results, statusCache, publisher, service.Options{
		Defaults: validation.Defaults{
			ImageQuality: cfg.DefaultImageQuality,
			VideoQuality: cfg.DefaultVideoQuality,
			AudioBitrate: cfg.DefaultAudioBitrate,
		},
		MaxFileSize: cfg.MaxFileSize,
	}, logger)

	router := handlers.NewRouter(handlers.NewTaskHandler(svc, cfg.MaxFileSize, logger), cfg.Version, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("API Service stopped with error", zap.Error(err))
		return
	}
	logger.Info("API Service stopped")
}
