package storage

import (
	"github.com/energyos/espi-authz/internal/common/config"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
)

// NewMySQL creates a MySQL-backed store.
func NewMySQL(logger *zap.Logger, cfg *config.DatabaseConfig) (Store, error) {
	return newGormStore(logger, mysql.Open(cfg.GetDSN()))
}
