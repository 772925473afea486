package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conference-central/backend/config"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/internal/store/postgres"
	"github.com/conference-central/backend/internal/store/sqlite"
)

// Open connects the entity store selected by cfg.Store.Driver. PostgreSQL
// migrations are applied when migrate is true; the SQLite schema is always applied.
func Open(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (store.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("SQLite store opened", zap.String("path", cfg.SQLite.Path))
		return st, nil
	case config.DriverPostgres:
		dsn := cfg.Database.DSN()
		if migrate {
			if err := Migrate(dsn, logger); err != nil {
				return nil, err
			}
		}
		pool, err := NewPostgresPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
