package config

import (
	"fmt"
	"time"
)

type (
	// AuthServerConfig is the root configuration for the authorization server
	AuthServerConfig struct {
		Port     int            `yaml:"port"`
		BaseURL  string         `yaml:"base_url"`
		Logger   LoggerConfig   `yaml:"logger"`
		Database DatabaseConfig `yaml:"database"`
		Authz    AuthzConfig    `yaml:"authz"`
		Importer ImporterConfig `yaml:"importer"`
		Admin    AdminConfig    `yaml:"admin"`
		Metrics  MetricsConfig  `yaml:"metrics"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// DatabaseConfig represents the relational store configuration
	DatabaseConfig struct {
		Type       string           `yaml:"type"`     // sqlite, postgres, mysql
		Host       string           `yaml:"host"`     // localhost
		Port       int              `yaml:"port"`     // 5432 (postgres), 3306 (mysql)
		User       string           `yaml:"user"`     // postgres (for postgres), root (for mysql)
		Password   string           `yaml:"password"` // password
		DBName     string           `yaml:"dbname"`   // database name, or file path for sqlite
		SSLMode    string           `yaml:"sslmode"`  // disable (for postgres)
		StateIndex StateIndexConfig `yaml:"state_index"`
	}

	// StateIndexConfig selects where single-use state tokens are consumed.
	// "db" uses a guarded UPDATE against the relational store; "redis" uses
	// an atomic GETDEL index for multi-instance deployments.
	StateIndexConfig struct {
		Type  string           `yaml:"type"` // db, redis
		Redis RedisIndexConfig `yaml:"redis"`
	}

	// RedisIndexConfig represents the Redis configuration for the state index
	RedisIndexConfig struct {
		Addr     string        `yaml:"addr"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix"`
		TTL      time.Duration `yaml:"ttl"` // TTL for pending state tokens
	}

	// AuthzConfig represents the authorization flow configuration
	AuthzConfig struct {
		CallbackPath          string        `yaml:"callback_path"`          // inbound redirect path
		FailureRedirect       string        `yaml:"failure_redirect"`       // generic failure page
		SuccessRedirect       string        `yaml:"success_redirect"`       // page shown after a completed callback
		AuthorizationEndpoint string        `yaml:"authorization_endpoint"` // data custodian authorization endpoint
		TokenEndpoint         string        `yaml:"token_endpoint"`         // data custodian token endpoint
		ExchangeTimeout       time.Duration `yaml:"exchange_timeout"`       // outbound token exchange bound
		CreatedTTL            time.Duration `yaml:"created_ttl"`            // max age of a Created authorization
		SweepInterval         time.Duration `yaml:"sweep_interval"`         // expiry sweep cadence
	}

	// ImporterConfig represents the async import worker pool configuration
	ImporterConfig struct {
		QueueSize int `yaml:"queue_size"`
		Workers   int `yaml:"workers"`
	}

	// AdminConfig represents the admin API credentials and bearer token
	// configuration. Password holds a bcrypt hash, never plaintext.
	AdminConfig struct {
		Username  string        `yaml:"username"`
		Password  string        `yaml:"password"`
		SecretKey string        `yaml:"secret_key"`
		Duration  time.Duration `yaml:"duration"`
	}

	// MetricsConfig represents the prometheus metrics configuration
	MetricsConfig struct {
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return c.DBName
	default:
		return ""
	}
}

// setDefaults fills in defaults for optional settings
func setDefaults(cfg *AuthServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.StateIndex.Type == "" {
		cfg.Database.StateIndex.Type = "db"
	}
	if cfg.Database.StateIndex.Redis.Prefix == "" {
		cfg.Database.StateIndex.Redis.Prefix = "espi:state:"
	}
	if cfg.Database.StateIndex.Redis.TTL <= 0 {
		cfg.Database.StateIndex.Redis.TTL = time.Hour
	}
	if cfg.Authz.CallbackPath == "" {
		cfg.Authz.CallbackPath = "/espi/1_1/oauth/callback"
	}
	if cfg.Authz.FailureRedirect == "" {
		cfg.Authz.FailureRedirect = "/authorization-failed"
	}
	if cfg.Authz.SuccessRedirect == "" {
		cfg.Authz.SuccessRedirect = "/authorization-complete"
	}
	if cfg.Authz.ExchangeTimeout <= 0 {
		cfg.Authz.ExchangeTimeout = 30 * time.Second
	}
	if cfg.Authz.CreatedTTL <= 0 {
		cfg.Authz.CreatedTTL = time.Hour
	}
	if cfg.Authz.SweepInterval <= 0 {
		cfg.Authz.SweepInterval = 10 * time.Minute
	}
	if cfg.Importer.QueueSize <= 0 {
		cfg.Importer.QueueSize = 256
	}
	if cfg.Importer.Workers <= 0 {
		cfg.Importer.Workers = 4
	}
	if cfg.Admin.Duration <= 0 {
		cfg.Admin.Duration = 24 * time.Hour
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "espi_authz"
	}
}
