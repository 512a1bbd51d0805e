// Package kvstore provides the opaque key/value byte store the connection registry
// persists to. Backends are selected from configuration.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Store represents a persistent key/value store. A zero ttl means the value never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
}

// Backend names accepted in configuration.
const (
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend string
	Redis   RedisConfig
}

// New builds the configured backend. The database handle is required for the
// database backend and ignored otherwise. The returned close function is never nil.
func New(ctx context.Context, cfg Config, db *gorm.DB) (Store, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendDatabase:
		store := NewDatabaseStore(db)
		if store == nil {
			return nil, noop, errors.New("kvstore: database backend requires a database handle")
		}
		return store, noop, nil
	case BackendRedis:
		store, err := NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, fmt.Errorf("kvstore: connect redis: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("kvstore: unsupported backend %q", cfg.Backend)
	}
}
