package storage

import (
	"github.com/energyos/espi-authz/internal/common/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
)

// NewPostgres creates a PostgreSQL-backed store.
func NewPostgres(logger *zap.Logger, cfg *config.DatabaseConfig) (Store, error) {
	return newGormStore(logger, postgres.Open(cfg.GetDSN()))
}
