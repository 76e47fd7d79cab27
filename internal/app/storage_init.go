package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/mongosearch"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// runtimeDependencies: хранилища, выбранные конфигурацией.
type runtimeDependencies struct {
	store           domain.Store
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  health.Checker
	closeFn         func()
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.WithField("storage_driver", StorageDriverMemory).Info("storage initialized")
		return &runtimeDependencies{
			store:           store,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  health.NewPingChecker("storage", store),
			closeFn:         func() {},
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", cfg.StorageDriver)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		logger.WithFields(log.Fields{
			"storage_driver": StorageDriverPostgres,
			"auto_migrate":   cfg.PostgresAutoMigrate,
		}).Info("storage initialized")
		return &runtimeDependencies{
			store:           store,
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  health.NewPingChecker("storage", store),
			closeFn: func() {
				if err := store.Close(); err != nil {
					logger.WithError(err).Warn("failed to close postgres store")
				}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// searchDependencies: поисковая проекция. Недоступность поиска не роняет сервис,
// поэтому проверка здоровья у неё необязательная.
type searchDependencies struct {
	index   domain.SearchIndex
	checker health.Checker
	closeFn func()
}

func initSearchIndex(ctx context.Context, cfg Config, logger *log.Entry) (*searchDependencies, error) {
	switch cfg.SearchDriver {
	case "", SearchDriverMemory:
		index := memory.NewSearchIndex()
		logger.WithField("search_driver", SearchDriverMemory).Info("search index initialized")
		return &searchDependencies{
			index:   index,
			checker: health.NewOptionalPingChecker("search", index),
			closeFn: func() {},
		}, nil
	case SearchDriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo uri is required for search driver %q", cfg.SearchDriver)
		}
		index, err := mongosearch.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.WithFields(log.Fields{
			"search_driver": SearchDriverMongo,
			"database":      cfg.MongoDatabase,
		}).Info("search index initialized")
		return &searchDependencies{
			index:   index,
			checker: health.NewOptionalPingChecker("search", index),
			closeFn: func() {
				if err := index.Close(context.Background()); err != nil {
					logger.WithError(err).Warn("failed to close mongo client")
				}
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported search driver %q", cfg.SearchDriver)
	}
}
