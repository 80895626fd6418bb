// Package backend opens the task store, blob stores and status cache selected by
// configuration. Both binaries share it so that the API and the workers agree on
// where tasks and artifacts live.
package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mediaCompressor/blob"
	"mediaCompressor/cache"
	"mediaCompressor/database"
	"mediaCompressor/repository"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	BlobMemory = "memory"
	BlobFile   = "file"
	BlobRedis  = "redis"
)

type Config struct {
	StoreBackend string
	BlobBackend  string
	DatabaseURL  string
	MaxConns     int32
	RedisAddr    string
	DataDir      string
	// BlobTTL bounds how long Redis keeps blobs. Zero keeps them until deleted.
	BlobTTL time.Duration
}

// Backends holds everything the pipeline persists to. Cache is nil unless Redis is
// configured.
type Backends struct {
	Repo    repository.Repository
	Inputs  blob.Store
	Results blob.Store
	Cache   *cache.StatusCache

	closers []func()
}

func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.StoreBackend {
	case "", StoreMemory:
		b.Repo = repository.NewMemoryRepo()
	case StorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)

		repo := repository.NewPostgresRepo(db)
		if err := repo.EnsureTable(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("prepare tasks table: %w", err)
		}
		b.Repo = repo
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var redisCache *database.Cache
	if cfg.RedisAddr != "" {
		c, err := database.ConnectCache(cfg.RedisAddr)
		if err != nil {
			if cfg.BlobBackend == BlobRedis {
				b.Close()
				return nil, fmt.Errorf("connect to redis: %w", err)
			}
			logger.Warn("Redis unavailable, status cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			redisCache = c
			b.closers = append(b.closers, func() { c.Close() })
			b.Cache = cache.NewStatusCache(c)
		}
	}

	switch cfg.BlobBackend {
	case "", BlobMemory:
		b.Inputs = blob.NewMemoryStore()
		b.Results = blob.NewMemoryStore()
	case BlobFile:
		inputs, err := blob.NewFileStore(filepath.Join(cfg.DataDir, "inputs"))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open input store: %w", err)
		}
		results, err := blob.NewFileStore(filepath.Join(cfg.DataDir, "results"))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open result store: %w", err)
		}
		b.Inputs, b.Results = inputs, results
	case BlobRedis:
		if redisCache == nil {
			b.Close()
			return nil, fmt.Errorf("blob backend %q requires REDIS_ADDR", BlobRedis)
		}
		b.Inputs = blob.NewRedisStore(redisCache, "blob:input:", cfg.BlobTTL)
		b.Results = blob.NewRedisStore(redisCache, "blob:result:", cfg.BlobTTL)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}

	logger.Info("Backends ready",
		zap.String("store", valueOr(cfg.StoreBackend, StoreMemory)),
		zap.String("blobs", valueOr(cfg.BlobBackend, BlobMemory)),
		zap.Bool("status_cache", b.Cache != nil),
	)
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
