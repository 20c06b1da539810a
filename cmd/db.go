package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database/postgres"
)

// openStore connects to PostgreSQL and runs pending migrations. The caller
// owns the pool and must close it.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Pool, *postgres.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return pool, postgres.NewStore(pool), nil
}
