package core

import (
	"context"
	"fmt"
	"io"

	"habitcore/internal/config"
	"habitcore/internal/infra/persistence/memory"
	"habitcore/internal/infra/persistence/postgres"
	"habitcore/internal/infra/persistence/sqlite"
	"habitcore/pkg/domain"
)

// OpenPersistentStore selects a protocol store backend from cfg.
//
//	memory:   process memory only (tests / ephemeral runs)
//	sqlite:   embedded sqlite file at cfg.SQLitePath
//	postgres: PostgreSQL server at cfg.PostgresDSN
func OpenPersistentStore(ctx context.Context, cfg config.Storage) (domain.ProtocolStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// CloseStore releases a store's resources when it holds any.
func CloseStore(store domain.ProtocolStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
