package storage

import (
	"fmt"

	"github.com/energyos/espi-authz/internal/common/config"
	"go.uber.org/zap"
)

// NewStore creates a Store based on configuration and, when configured,
// wraps it with the Redis state-token index.
func NewStore(logger *zap.Logger, cfg *config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case "sqlite":
		store, err = NewSQLite(logger, cfg)
	case "postgres":
		store, err = NewPostgres(logger, cfg)
	case "mysql":
		store, err = NewMySQL(logger, cfg)
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.StateIndex.Type == "redis" {
		return NewRedisStateIndex(logger, store, &cfg.StateIndex.Redis)
	}
	return store, nil
}
