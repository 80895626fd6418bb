package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mediaCompressor/blob"
	"mediaCompressor/metrics"
	"mediaCompressor/models"
	"mediaCompressor/queue"
	"mediaCompressor/repository"
	"mediaCompressor/worker/engine"
	"mediaCompressor/worker/media"
)

const terminalWriteTimeout = 10 * time.Second

type Decoder interface {
	Decode(ctx context.Context, kind models.MediaKind, data []byte) (*media.Asset, error)
}

type Compressor interface {
	Compress(ctx context.Context, asset *media.Asset, settings models.Settings, progress engine.ProgressFunc) ([]byte, *models.Report, error)
}

// StatusCache receives terminal snapshots for pollers.
type StatusCache interface {
	Set(ctx context.Context, task *models.Task) error
}

// Pipeline is the per-task work the processor drives.
type Pipeline struct {
	Decoder    Decoder
	Compressor Compressor
	// MaxProcessing bounds one task from claim to terminal write.
	MaxProcessing time.Duration
	// Heartbeat is how often a running task refreshes its lease. Zero disables it.
	Heartbeat time.Duration
}

type Processor struct {
	repo     repository.Repository
	inputs   blob.Store
	results  blob.Store
	cache    StatusCache
	pipeline Pipeline
	logger   *zap.Logger
}

// NewProcessor creates a processor. cache may be nil.
func NewProcessor(repo repository.Repository, inputs, results blob.Store, cache StatusCache, pipeline Pipeline, logger *zap.Logger) *Processor {
	if pipeline.MaxProcessing <= 0 {
		pipeline.MaxProcessing = 10 * time.Minute
	}
	return &Processor{
		repo:     repo,
		inputs:   inputs,
		results:  results,
		cache:    cache,
		pipeline: pipeline,
		logger:   logger.Named("processor"),
	}
}

// taskError carries the failure kind recorded on the task.
type taskError struct {
	kind models.ErrorKind
	err  error
}

func (e *taskError) Error() string { return e.err.Error() }
func (e *taskError) Unwrap() error { return e.err }

func newTaskError(kind models.ErrorKind, format string, args ...any) error {
	return &taskError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Process claims the task named by msg and runs it to a terminal status. Messages for
// tasks that are unknown or already claimed are dropped.
func (p *Processor) Process(ctx context.Context, msg *queue.TaskMessage) error {
	logger := p.logger.With(
		zap.String("task_id", msg.TaskID),
		zap.String("trace_id", msg.TraceID),
		zap.String("media_kind", string(msg.MediaKind)),
	)

	progress := engine.ProgressClaimed
	task, err := p.repo.Transition(ctx, msg.TaskID, models.StatusProcessing, models.Update{Progress: &progress})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
			logger.Info("Skipping task that is not pending", zap.Error(err))
			return nil
		}
		return fmt.Errorf("claim task %s: %w", msg.TaskID, err)
	}
	logger.Info("Task claimed")
	start := time.Now()

	taskCtx, cancel := context.WithTimeout(ctx, p.pipeline.MaxProcessing)
	defer cancel()

	stopHeartbeat := p.heartbeat(taskCtx, task.ID, logger)
	out, report, runErr := p.run(taskCtx, task, logger)
	stopHeartbeat()

	// Terminal writes must land even when the task deadline has passed.
	writeCtx, writeCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer writeCancel()

	var final *models.Task
	if runErr == nil {
		final, runErr = p.complete(writeCtx, task, out, report)
	}
	if runErr != nil {
		final, err = p.fail(writeCtx, ctx, task, runErr, logger)
		if err != nil {
			return err
		}
	}

	if err := p.inputs.Delete(writeCtx, task.ID); err != nil {
		logger.Warn("Failed to delete uploaded original", zap.Error(err))
	}
	if p.cache != nil && final != nil {
		if err := p.cache.Set(writeCtx, final); err != nil {
			logger.Warn("Failed to cache task status", zap.Error(err))
		}
	}

	if final != nil {
		metrics.ObserveFinished(string(final.MediaKind), string(final.Status), time.Since(start))
		if final.CompressionRatio != nil {
			metrics.ObserveRatio(string(final.MediaKind), *final.CompressionRatio)
		}
		logger.Info("Task finished",
			zap.String("status", string(final.Status)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

func (p *Processor) run(ctx context.Context, task *models.Task, logger *zap.Logger) (out []byte, report *models.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while processing task", zap.Any("panic", r), zap.Stack("stack"))
			err = newTaskError(models.ErrorKindCodecFatal, "internal error: %v", r)
		}
	}()

	input, err := p.inputs.Get(ctx, task.ID)
	if err != nil {
		return nil, nil, newTaskError(models.ErrorKindIO, "read uploaded file: %w", err)
	}

	asset, err := p.pipeline.Decoder.Decode(ctx, task.MediaKind, input)
	if err != nil {
		return nil, nil, newTaskError(models.ErrorKindCodecFatal, "decode %s: %w", task.MediaKind, err)
	}
	p.progress(ctx, task.ID, engine.ProgressDecoded, logger)

	out, report, err = p.pipeline.Compressor.Compress(ctx, asset, task.Settings, func(pr int) {
		p.progress(ctx, task.ID, pr, logger)
	})
	if err != nil {
		return nil, nil, newTaskError(models.ErrorKindCodecFatal, "compress: %w", err)
	}
	return out, report, nil
}

// heartbeat keeps the task's lease alive while a long step runs without reaching a
// progress milestone. The returned func stops it and waits for the goroutine to exit.
func (p *Processor) heartbeat(ctx context.Context, id string, logger *zap.Logger) func() {
	if p.pipeline.Heartbeat <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.pipeline.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Progress never decreases, so 0 only refreshes updated_at.
				p.progress(ctx, id, 0, logger)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (p *Processor) progress(ctx context.Context, id string, pr int, logger *zap.Logger) {
	if err := p.repo.UpdateProgress(ctx, id, pr); err != nil {
		logger.Debug("Progress update rejected", zap.Int("progress", pr), zap.Error(err))
	}
}

// complete stores the artifact and then completes the task. If the task is no longer
// processing (the reaper failed it) the stored artifact is removed again.
func (p *Processor) complete(ctx context.Context, task *models.Task, out []byte, report *models.Report) (*models.Task, error) {
	if err := p.results.Put(ctx, task.ID, out); err != nil {
		return nil, newTaskError(models.ErrorKindIO, "store result: %w", err)
	}

	size := int64(len(out))
	done, err := p.repo.Transition(ctx, task.ID, models.StatusCompleted, models.Update{
		CompressedSize: &size,
		Report:         report,
	})
	if err != nil {
		if delErr := p.results.Delete(ctx, task.ID); delErr != nil {
			p.logger.Warn("Failed to remove orphaned result", zap.String("task_id", task.ID), zap.Error(delErr))
		}
		if errors.Is(err, models.ErrInvalidTransition) {
			p.logger.Warn("Task left processing before completion", zap.String("task_id", task.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	return done, nil
}

// fail records runErr on the task. parent is the context the processor was called with,
// used to tell a task timeout from a worker shutdown.
func (p *Processor) fail(ctx, parent context.Context, task *models.Task, runErr error, logger *zap.Logger) (*models.Task, error) {
	kind := models.ErrorKindCodecFatal
	var te *taskError
	if errors.As(runErr, &te) {
		kind = te.kind
	}
	switch {
	case parent.Err() != nil:
		kind = models.ErrorKindWorkerLost
	case errors.Is(runErr, context.DeadlineExceeded):
		kind = models.ErrorKindTimeout
	}

	message := runErr.Error()
	if kind == models.ErrorKindTimeout {
		message = fmt.Sprintf("processing exceeded %s: %v", p.pipeline.MaxProcessing, runErr)
	}

	logger.Warn("Task failed",
		zap.String("error_kind", string(kind)),
		zap.Error(runErr),
	)

	failed, err := p.repo.Transition(ctx, task.ID, models.StatusFailed, models.Update{
		ErrorKind:    kind,
		ErrorMessage: message,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	return failed, nil
}
