package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*AuthServerConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := resolvePath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg AuthServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	setDefaults(&cfg)
	return &cfg, cfgPath, nil
}

// resolvePath resolves the configuration file path relative to the working directory
func resolvePath(filename string) string {
	if filename == "" || filepath.IsAbs(filename) {
		return filename
	}
	currentDir, err := os.Getwd()
	if err != nil || currentDir == "" {
		return filename
	}
	return filepath.Join(currentDir, filename)
}

// resolveEnv replaces ${VAR} and ${VAR:default} references with environment values
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
