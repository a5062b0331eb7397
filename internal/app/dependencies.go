package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
)

// storage объединяет роли хранилища, которые нужны сервисам.
type storage interface {
	domain.UnitOfWork
	domain.CatalogRepository
	domain.ImageLookup
	domain.OutboxRepository
}

// Dependencies содержит инфраструктуру, общую для сервисов.
type Dependencies struct {
	Storage storage
	// Ping проверяет доступность хранилища для /healthz.
	Ping  func(ctx context.Context) error
	close func() error
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close()
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		return &Dependencies{
			Storage: memory.NewStore(),
			Ping:    func(context.Context) error { return nil },
		}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%s is required for postgres storage", envPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithMaxConns(cfg.PostgresMaxConns))
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			logger.WithFields(log.Fields{
				"schema_version": state.Version,
				"applied":        state.Applied,
			}).Info("postgres schema is up to date")
		}
		return &Dependencies{
			Storage: store,
			Ping:    store.Ping,
			close:   store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
