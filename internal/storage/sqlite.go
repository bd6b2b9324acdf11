package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
)

// NewSQLite creates a SQLite-backed store, creating the database directory
// if needed.
func NewSQLite(logger *zap.Logger, cfg *config.DatabaseConfig) (Store, error) {
	dir := filepath.Dir(cfg.DBName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return newGormStore(logger, sqlite.Open(cfg.GetDSN()))
}
