package repository

import (
	"context"
	"time"

	"mediaCompressor/models"
)

// Repository is the task store. Transition and UpdateProgress are the only mutation
// paths for an existing task and serialize per id.
type Repository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	Transition(ctx context.Context, id string, to models.TaskStatus, update models.Update) (*models.Task, error)
	UpdateProgress(ctx context.Context, id string, progress int) error
	// ListStale returns tasks in status whose last update is older than before.
	ListStale(ctx context.Context, status models.TaskStatus, before time.Time) ([]*models.Task, error)
	// ListExpired returns terminal tasks completed before the given time.
	ListExpired(ctx context.Context, before time.Time) ([]*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}
