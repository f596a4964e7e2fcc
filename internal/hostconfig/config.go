// Package hostconfig loads CLI host settings from the environment and
// engine configuration from YAML.
package hostconfig

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/logging"
)

// Config holds host settings for the CLI.
type Config struct {
	Engine  string    `envconfig:"ENGINE"`
	Logging LogConfig `envconfig:"LOG"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
	File        string `envconfig:"FILE"`
	MaxSizeMB   int    `envconfig:"MAX_SIZE_MB" default:"100"`
	MaxBackups  int    `envconfig:"MAX_BACKUPS" default:"3"`
	MaxAgeDays  int    `envconfig:"MAX_AGE_DAYS" default:"28"`
	Compress    bool   `envconfig:"COMPRESS" default:"false"`
}

// Prefix is the environment variable prefix, e.g. JSBRIDGE_LOG_LEVEL.
const Prefix = "JSBRIDGE"

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoggingConfig converts the host settings to a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		File:        c.Logging.File,
		MaxSizeMB:   c.Logging.MaxSizeMB,
		MaxBackups:  c.Logging.MaxBackups,
		MaxAgeDays:  c.Logging.MaxAgeDays,
		Compress:    c.Logging.Compress,
	}
}

// LoadEngineConfig reads a YAML mapping of engine options. An empty path
// yields an empty configuration.
func LoadEngineConfig(path string) (core.Config, error) {
	if path == "" {
		return core.Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine config: %w", err)
	}
	return ParseEngineConfig(data)
}

// ParseEngineConfig decodes a YAML mapping of engine options.
func ParseEngineConfig(data []byte) (core.Config, error) {
	cfg := core.Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	return cfg, nil
}
