package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mediaCompressor/database"
	"mediaCompressor/models"
)

const (
	statusKeyPrefix = "task:status:"
	statusTTL       = 10 * time.Minute
)

// StatusCache keeps the latest task snapshot for pollers. The task store stays the
// source of truth; a miss or decode error falls back to it.
type StatusCache struct {
	cache *database.Cache
	ttl   time.Duration
}

func NewStatusCache(cache *database.Cache) *StatusCache {
	return &StatusCache{cache: cache, ttl: statusTTL}
}

func (sc *StatusCache) Get(ctx context.Context, taskID string) (*models.Task, error) {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, taskID)

	data, err := sc.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, err
	}

	return &task, nil
}

func (sc *StatusCache) Set(ctx context.Context, task *models.Task) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, task.ID)

	data, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return sc.cache.Set(ctx, key, data, sc.ttl)
}

func (sc *StatusCache) Delete(ctx context.Context, taskID string) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, taskID)
	return sc.cache.Del(ctx, key)
}
