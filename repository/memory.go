package repository

import (
	"context"
	"sync"
	"time"

	"mediaCompressor/models"
)

type memoryEntry struct {
	mu   sync.Mutex
	task *models.Task
}

// MemoryRepo keeps tasks in process memory. Each task has its own lock so that
// transitions on different tasks never contend.
type MemoryRepo struct {
	mu    sync.RWMutex
	tasks map[string]*memoryEntry
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		tasks: make(map[string]*memoryEntry),
		now:   time.Now,
	}
}

func (r *MemoryRepo) entry(id string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	return e, ok
}

func (r *MemoryRepo) CreateTask(ctx context.Context, task *models.Task) error {
	if task.Status != models.StatusPending {
		return models.ErrInvalidTransition
	}

	now := r.now()
	stored := task.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[task.ID]; exists {
		return models.ErrAlreadyExists
	}
	r.tasks[task.ID] = &memoryEntry{task: stored}

	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

func (r *MemoryRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

func (r *MemoryRepo) Transition(ctx context.Context, id string, to models.TaskStatus, update models.Update) (*models.Task, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.task.Clone()
	if err := models.Apply(next, to, update, r.now()); err != nil {
		return nil, err
	}
	e.task = next
	return next.Clone(), nil
}

func (r *MemoryRepo) UpdateProgress(ctx context.Context, id string, progress int) error {
	e, ok := r.entry(id)
	if !ok {
		return models.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.ApplyProgress(e.task, progress, r.now())
}

func (r *MemoryRepo) ListStale(ctx context.Context, status models.TaskStatus, before time.Time) ([]*models.Task, error) {
	return r.collect(func(t *models.Task) bool {
		return t.Status == status && t.UpdatedAt.Before(before)
	}), nil
}

func (r *MemoryRepo) ListExpired(ctx context.Context, before time.Time) ([]*models.Task, error) {
	return r.collect(func(t *models.Task) bool {
		return t.Status.Terminal() && t.CompletedAt != nil && t.CompletedAt.Before(before)
	}), nil
}

func (r *MemoryRepo) DeleteTask(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryRepo) collect(match func(*models.Task) bool) []*models.Task {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []*models.Task
	for _, e := range entries {
		e.mu.Lock()
		if match(e.task) {
			out = append(out, e.task.Clone())
		}
		e.mu.Unlock()
	}
	return out
}
