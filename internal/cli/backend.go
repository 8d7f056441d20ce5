package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/chatlog-go/internal/cache"
	"github.com/raphaelgruber/chatlog-go/internal/config"
	"github.com/raphaelgruber/chatlog-go/internal/db"
	"github.com/raphaelgruber/chatlog-go/internal/memstore"
	"github.com/raphaelgruber/chatlog-go/internal/postgres"
	"github.com/raphaelgruber/chatlog-go/internal/store"
)

// wiper is implemented by backends that support wiping all data.
type wiper interface {
	WipeData(ctx context.Context) error
}

// openRepository connects the configured backend, prepares its schema and
// wraps it with the Redis listing cache when one is configured. With wipe set,
// all stored conversations are deleted before the cache is attached.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger, wipe bool) (store.Repository, error) {
	var repo store.Repository

	switch cfg.Backend {
	case config.BackendSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:               cfg.SurrealDBURL,
			Namespace:         cfg.SurrealDBNamespace,
			Database:          cfg.SurrealDBDatabase,
			Username:          cfg.SurrealDBUser,
			Password:          cfg.SurrealDBPass,
			AuthLevel:         cfg.SurrealDBAuthLevel,
			MaxUpdateAttempts: cfg.MaxUpdateAttempts,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to surrealdb: %w", err)
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
		repo = client

	case config.BackendPostgres:
		pg, err := postgres.New(ctx, postgres.Config{
			URL:      cfg.PostgresURL,
			MaxConns: cfg.PostgresMaxConns,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close(ctx)
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		repo = pg

	case config.BackendMemory:
		logger.Warn("using in-memory backend, conversations are lost on exit")
		repo = memstore.New()

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if wipe {
		if w, ok := repo.(wiper); ok {
			if err := w.WipeData(ctx); err != nil {
				_ = repo.Close(ctx)
				return nil, fmt.Errorf("wipe database: %w", err)
			}
		}
	}

	if cfg.RedisURL == "" {
		return repo, nil
	}
	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = repo.Close(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if wipe {
		if err := cache.Flush(ctx, client); err != nil {
			_ = client.Close()
			_ = repo.Close(ctx)
			return nil, fmt.Errorf("flush cache: %w", err)
		}
	}
	logger.Info("conversation list cache enabled", "ttl", cfg.CacheTTL)
	return cache.New(repo, client, cfg.CacheTTL, logger), nil
}
