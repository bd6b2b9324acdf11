package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "base_url: http://localhost:8080\n")

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "db", cfg.Database.StateIndex.Type)
	assert.Equal(t, "/espi/1_1/oauth/callback", cfg.Authz.CallbackPath)
	assert.Equal(t, 30*time.Second, cfg.Authz.ExchangeTimeout)
	assert.Equal(t, time.Hour, cfg.Authz.CreatedTTL)
	assert.Equal(t, 10*time.Minute, cfg.Authz.SweepInterval)
	assert.Equal(t, 256, cfg.Importer.QueueSize)
	assert.Equal(t, 4, cfg.Importer.Workers)
	assert.Equal(t, "espi_authz", cfg.Metrics.Namespace)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_AUTHZ_TOKEN_ENDPOINT", "https://custodian.example.com/oauth/token")

	path := writeConfig(t, `
authz:
  token_endpoint: "${TEST_AUTHZ_TOKEN_ENDPOINT:http://localhost:8081/oauth/token}"
  exchange_timeout: ${TEST_UNSET_TIMEOUT:45s}
`)

	cfg, _, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://custodian.example.com/oauth/token", cfg.Authz.TokenEndpoint)
	assert.Equal(t, 45*time.Second, cfg.Authz.ExchangeTimeout, "unset variable falls back to its default")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGetDSN(t *testing.T) {
	pg := &DatabaseConfig{Type: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "espi", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=espi sslmode=disable", pg.GetDSN())

	my := &DatabaseConfig{Type: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", DBName: "espi"}
	assert.Equal(t, "u:p@tcp(db:3306)/espi?charset=utf8mb4&parseTime=True&loc=Local", my.GetDSN())

	lite := &DatabaseConfig{Type: "sqlite", DBName: "./data/authserver.db"}
	assert.Equal(t, "./data/authserver.db", lite.GetDSN())
}
