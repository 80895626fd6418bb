package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediaCompressor/backend"
	"mediaCompressor/metrics"
	"mediaCompressor/worker/app"
	"mediaCompressor/worker/config"
	"mediaCompressor/worker/kafka"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.QueueBackend != "kafka" {
		logger.Fatal("The standalone worker consumes from Kafka; run the API with QUEUE_BACKEND=local for in-process workers",
			zap.String("queue_backend", cfg.QueueBackend))
	}

	logger.Info("Worker Service starting",
		zap.Int("workers", cfg.WorkerCount),
		zap.String("topic", cfg.KafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
	)

	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := backend.Open(ctx, cfg.Backend, logger)
	if err != nil {
		logger.Fatal("Failed to open backends", zap.Error(err))
	}
	defer backends.Close()

	consumer, err := kafka.NewConsumer(cfg.Brokers(), cfg.KafkaGroupID, cfg.KafkaTopic, logger)
	if err != nil {
		logger.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	worker := app.New(ctx, cfg, backends, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		return worker.Run(gctx, consumer)
	})
	g.Go(func() error {
		logger.Info("Metrics server started", zap.String("address", cfg.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker Service stopped with error", zap.Error(err))
		return
	}
	logger.Info("Worker Service stopped")
}
