// Package reaper recovers tasks abandoned by dead workers and removes expired ones.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaCompressor/blob"
	"mediaCompressor/metrics"
	"mediaCompressor/models"
	"mediaCompressor/repository"
)

type StatusCache interface {
	Set(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, taskID string) error
}

type Config struct {
	Interval time.Duration
	// Lease is how long a processing task may go without a progress heartbeat.
	Lease time.Duration
	// Retention is how long terminal tasks and their artifacts are kept. Zero keeps
	// them forever.
	Retention time.Duration
}

type Reaper struct {
	repo    repository.Repository
	inputs  blob.Store
	results blob.Store
	cache   StatusCache
	cfg     Config
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a reaper. cache may be nil.
func New(repo repository.Repository, inputs, results blob.Store, cache StatusCache, cfg Config, logger *zap.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reaper{
		repo:    repo,
		inputs:  inputs,
		results: results,
		cache:   cache,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.Named("reaper"),
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("Starting reaper",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("lease", r.cfg.Lease),
		zap.Duration("retention", r.cfg.Retention),
	)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping reaper")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one recovery and one expiry pass.
func (r *Reaper) Sweep(ctx context.Context) {
	if n, err := r.RecoverLost(ctx); err != nil {
		r.logger.Error("Lease recovery failed", zap.Error(err))
	} else if n > 0 {
		metrics.IncReaped("worker_lost", n)
		r.logger.Info("Failed tasks abandoned by workers", zap.Int("count", n))
	}

	if n, err := r.Expire(ctx); err != nil {
		r.logger.Error("Retention sweep failed", zap.Error(err))
	} else if n > 0 {
		metrics.IncReaped("expired", n)
		r.logger.Info("Removed expired tasks", zap.Int("count", n))
	}
}

// RecoverLost fails processing tasks whose heartbeat is older than the lease.
func (r *Reaper) RecoverLost(ctx context.Context) (int, error) {
	if r.cfg.Lease <= 0 {
		return 0, nil
	}

	stale, err := r.repo.ListStale(ctx, models.StatusProcessing, r.now().Add(-r.cfg.Lease))
	if err != nil {
		return 0, fmt.Errorf("list stale tasks: %w", err)
	}

	recovered := 0
	for _, t := range stale {
		failed, err := r.repo.Transition(ctx, t.ID, models.StatusFailed, models.Update{
			ErrorKind:    models.ErrorKindWorkerLost,
			ErrorMessage: fmt.Sprintf("no progress from worker for %s", r.cfg.Lease),
		})
		if err != nil {
			// The worker finished between the listing and the transition.
			if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
				continue
			}
			return recovered, fmt.Errorf("fail task %s: %w", t.ID, err)
		}
		if err := r.inputs.Delete(ctx, t.ID); err != nil {
			r.logger.Warn("Failed to delete uploaded original", zap.String("task_id", t.ID), zap.Error(err))
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, failed); err != nil {
				r.logger.Warn("Failed to cache task status", zap.String("task_id", t.ID), zap.Error(err))
			}
		}
		metrics.ObserveFinished(string(failed.MediaKind), string(failed.Status), 0)
		recovered++
	}
	return recovered, nil
}

// Expire deletes terminal tasks past retention together with their blobs.
func (r *Reaper) Expire(ctx context.Context) (int, error) {
	if r.cfg.Retention <= 0 {
		return 0, nil
	}

	expired, err := r.repo.ListExpired(ctx, r.now().Add(-r.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("list expired tasks: %w", err)
	}

	removed := 0
	for _, t := range expired {
		if err := r.results.Delete(ctx, t.ID); err != nil {
			return removed, fmt.Errorf("delete result %s: %w", t.ID, err)
		}
		if err := r.inputs.Delete(ctx, t.ID); err != nil {
			return removed, fmt.Errorf("delete input %s: %w", t.ID, err)
		}
		if err := r.repo.DeleteTask(ctx, t.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return removed, fmt.Errorf("delete task %s: %w", t.ID, err)
		}
		if r.cache != nil {
			if err := r.cache.Delete(ctx, t.ID); err != nil {
				r.logger.Warn("Failed to drop cached status", zap.String("task_id", t.ID), zap.Error(err))
			}
		}
		removed++
	}
	return removed, nil
}
