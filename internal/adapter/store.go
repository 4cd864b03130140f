// Package adapter selects and opens the configured State Store.
package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"treasury/internal/adapter/repo"
	"treasury/internal/adapter/sqlitestore"
	"treasury/internal/domain"
	"treasury/internal/infra"
	"treasury/internal/migrations"
)

// OpenStore connects to the configured backend and applies pending migrations.
func OpenStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.Store, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLitePath).Msg("store opened")
		return store, nil

	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := migrations.ApplyPostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info().Str("driver", cfg.StoreDriver).Msg("store opened")
		return repo.NewStore(infra.NewSQLRunner(pool, logger), pool.Close), nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
