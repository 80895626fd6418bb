package blob

import (
	"context"
	"fmt"
	"time"

	"mediaCompressor/database"
	"mediaCompressor/models"
)

// RedisStore keeps blobs as plain string values with an optional TTL.
type RedisStore struct {
	cache  *database.Cache
	prefix string
	ttl    time.Duration
}

func NewRedisStore(cache *database.Cache, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cache, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if !validKey(key) {
		return fmt.Errorf("blob key %q: %w", key, models.ErrInvalidInput)
	}
	ok, err := s.cache.SetNX(ctx, s.key(key), data, s.ttl)
	if err != nil {
		return fmt.Errorf("put blob: %w", err)
	}
	if !ok {
		return models.ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.cache.GetBytes(ctx, s.key(key))
	if err != nil {
		if database.IsMiss(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.cache.Del(ctx, s.key(key))
}
