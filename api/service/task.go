package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaCompressor/api/dto"
	"mediaCompressor/api/validation"
	"mediaCompressor/blob"
	"mediaCompressor/metrics"
	"mediaCompressor/models"
	"mediaCompressor/queue"
	"mediaCompressor/repository"
)

const enqueueFailureTimeout = 5 * time.Second

// StatusCache holds terminal task snapshots so polling does not hit the task store.
type StatusCache interface {
	Get(ctx context.Context, taskID string) (*models.Task, error)
	Set(ctx context.Context, task *models.Task) error
}

type TaskService struct {
	repo        repository.Repository
	inputs      blob.Store
	results     blob.Store
	cache       StatusCache
	publisher   queue.Publisher
	defaults    validation.Defaults
	maxFileSize int64
	logger      *zap.Logger
}

type Options struct {
	Defaults    validation.Defaults
	MaxFileSize int64
}

// NewTaskService creates the boundary service. cache may be nil.
func NewTaskService(repo repository.Repository, inputs, results blob.Store, cache StatusCache, publisher queue.Publisher, opts Options, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:        repo,
		inputs:      inputs,
		results:     results,
		cache:       cache,
		publisher:   publisher,
		defaults:    opts.Defaults,
		maxFileSize: opts.MaxFileSize,
		logger:      logger.Named("tasks"),
	}
}

// SubmitCompression validates the upload, records a pending task and enqueues it. It
// returns as soon as the task is queued. Invalid input never creates a task.
func (s *TaskService) SubmitCompression(ctx context.Context, req *dto.SubmitRequest) (string, error) {
	kind, err := validation.ParseKind(req.Kind)
	if err != nil {
		return "", err
	}
	settings, err := s.defaults.Settings(kind, req.Settings)
	if err != nil {
		return "", err
	}
	if err := validation.CheckSize(int64(len(req.Data)), s.maxFileSize); err != nil {
		return "", err
	}

	task := &models.Task{
		ID:               uuid.New().String(),
		TraceID:          req.TraceID,
		OriginalFilename: req.Filename,
		MediaKind:        kind,
		Settings:         settings,
		Status:           models.StatusPending,
		OriginalSize:     int64(len(req.Data)),
	}
	logger := s.logger.With(
		zap.String("task_id", task.ID),
		zap.String("trace_id", task.TraceID),
		zap.String("media_kind", string(kind)),
	)

	// The original must be in place before any worker can see the task.
	if err := s.inputs.Put(ctx, task.ID, req.Data); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		if delErr := s.inputs.Delete(ctx, task.ID); delErr != nil {
			logger.Warn("Failed to remove upload of unrecorded task", zap.Error(delErr))
		}
		return "", fmt.Errorf("create task: %w", err)
	}

	msg := &queue.TaskMessage{TaskID: task.ID, TraceID: task.TraceID, MediaKind: kind}
	if err := s.publisher.SendTaskMessage(ctx, msg); err != nil {
		s.abandon(ctx, task.ID, err, logger)
		return "", fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}

	metrics.IncSubmitted(string(kind))
	logger.Info("Task submitted",
		zap.Int64("original_size", task.OriginalSize),
		zap.Int("quality", settings.Quality),
		zap.Bool("adaptive_mode", settings.AdaptiveMode),
	)
	return task.ID, nil
}

// abandon fails a task that could not be queued so it does not sit in pending forever.
func (s *TaskService) abandon(ctx context.Context, id string, cause error, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueFailureTimeout)
	defer cancel()

	failed, err := s.repo.Transition(ctx, id, models.StatusFailed, models.Update{
		ErrorKind:    models.ErrorKindEnqueue,
		ErrorMessage: fmt.Sprintf("could not queue task: %v", cause),
	})
	if err != nil {
		logger.Error("Failed to mark unqueued task as failed", zap.Error(err))
		return
	}
	if err := s.inputs.Delete(ctx, id); err != nil {
		logger.Warn("Failed to delete upload of unqueued task", zap.Error(err))
	}
	s.cacheTerminal(ctx, failed, logger)
	logger.Error("Task could not be queued", zap.Error(cause))
}

// GetTask returns the latest snapshot. Terminal snapshots never change, so they are
// served from the cache when present.
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if s.cache != nil {
		if task, err := s.cache.Get(ctx, id); err == nil {
			return task, nil
		}
	}

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheTerminal(ctx, task, s.logger.With(zap.String("task_id", id)))
	return task, nil
}

// FetchResult returns the artifact of a completed task along with its snapshot.
func (s *TaskService) FetchResult(ctx context.Context, id string) ([]byte, *models.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if task.Status != models.StatusCompleted {
		return nil, task, fmt.Errorf("task %s is %s: %w", id, task.Status, models.ErrNotReady)
	}

	data, err := s.results.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, task, fmt.Errorf("result of task %s: %w", id, models.ErrNotFound)
		}
		return nil, task, fmt.Errorf("read result: %w", err)
	}
	return data, task, nil
}

func (s *TaskService) cacheTerminal(ctx context.Context, task *models.Task, logger *zap.Logger) {
	if s.cache == nil || !task.Status.Terminal() {
		return
	}
	if err := s.cache.Set(ctx, task); err != nil {
		logger.Warn("Failed to cache task status", zap.Error(err))
	}
}
