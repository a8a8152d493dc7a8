package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cronos-sched/cronos/internal/config"
	"github.com/cronos-sched/cronos/internal/store"
)

// NewPostgresPool configures and returns a PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// OpenStore opens the backend selected by STORE_DRIVER and applies its
// schema. The returned close function releases every resource it opened.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewPostgres(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("store ready", slog.String("driver", cfg.StoreDriver))
		return s, pool.Close, nil
	case config.DriverSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("store ready", slog.String("driver", cfg.StoreDriver), slog.String("path", cfg.SQLitePath))
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("close sqlite", slog.Any("error", err))
			}
		}, nil
	default:
		logger.Warn("using in-memory store; state is lost on exit")
		return store.NewMemory(), func() {}, nil
	}
}
