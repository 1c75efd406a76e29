package kv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skridlevsky/panel-vote/internal/db"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// OpenConfig selects and configures a backend
type OpenConfig struct {
	Backend        string
	DatabaseURL    string
	RedisURL       string
	RedisNamespace string
}

// Open connects the configured backend, running schema migrations for Postgres.
// The returned close func releases the backend's connections.
func Open(ctx context.Context, cfg OpenConfig) (Store, func(), error) {
	switch cfg.Backend {
	case BackendPostgres:
		database, err := db.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx, database.Pool()); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewPostgres(database.Pool()), database.Close, nil

	case BackendRedis:
		store, err := NewRedis(cfg.RedisURL, cfg.RedisNamespace)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close redis client", "error", err)
			}
		}, nil

	case BackendMemory:
		slog.Warn("Using in-memory store; votes are lost on restart")
		return NewMemory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
