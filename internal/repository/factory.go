package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/database"
	"github.com/oscillometry-report-server/internal/domain"
)

// CloseFunc releases the resources held by a store.
type CloseFunc func() error

// Open builds the patient store selected by cfg.Storage.Backend, wrapped in a read cache
// when cfg.Storage.ReadCacheSize is positive. databaseURL is only used by the postgres
// backend, for migrations.
func Open(ctx context.Context, cfg *domain.Config, databaseURL string, logger *logrus.Logger) (domain.PatientStore, CloseFunc, error) {
	var (
		store  domain.PatientStore
		closer CloseFunc = func() error { return nil }
	)

	switch cfg.Storage.Backend {
	case domain.StorageMemory:
		store = NewMemoryStore()
	case domain.StorageJSONFile:
		s, err := NewJSONFileStore(cfg.Storage.JSONFilePath, logger)
		if err != nil {
			return nil, nil, err
		}
		store = s
	case domain.StorageSQLite:
		s, err := NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s.Close
	case domain.StoragePostgres:
		if cfg.Database.MigrateOnStart {
			if err := migrate(ctx, databaseURL, logger); err != nil {
				return nil, nil, err
			}
		}
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
		if err != nil {
			return nil, nil, err
		}
		store = NewPostgresStore(db.Pool, logger)
		closer = func() error {
			db.Close()
			return nil
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	if cfg.Storage.ReadCacheSize > 0 {
		cached, err := NewCachedStore(store, cfg.Storage.ReadCacheSize, logger)
		if err != nil {
			_ = closer()
			return nil, nil, fmt.Errorf("creating read cache: %w", err)
		}
		store = cached
	}

	logger.WithField("backend", cfg.Storage.Backend).Info("Patient store ready")
	return store, closer, nil
}

func migrate(ctx context.Context, databaseURL string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}
