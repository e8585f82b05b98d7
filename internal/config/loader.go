package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "HUBCONN_"

// LoadOptions represents options for loading configuration
type LoadOptions struct {
	Path string
}

// Load loads configuration from various sources
func Load(opts ...LoadOptions) (*Config, error) {
	cfg := Default()

	var options LoadOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.Path != "" {
		if err := loadFromFile(cfg, options.Path); err != nil {
			return nil, err
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

func env(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// loadFromEnv overrides configuration from HUBCONN_* environment variables
func loadFromEnv(cfg *Config) error {
	if v, ok := env("URL"); ok {
		cfg.Connection.URL = v
	}
	if v, ok := env("QUERY_STRING"); ok {
		cfg.Connection.QueryString = v
	}
	if v, ok := env("GROUPS"); ok {
		cfg.Connection.Groups = strings.Split(v, ",")
	}
	if v, ok := env("ATTEMPT_RECONNECTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigError("connection.attempt_reconnects", "invalid boolean "+strconv.Quote(v))
		}
		cfg.Connection.AttemptReconnects = b
	}
	if v, ok := env("RECONNECT_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewConfigError("connection.reconnect_delay", "invalid duration "+strconv.Quote(v))
		}
		cfg.Connection.ReconnectDelay = d
	}

	if v, ok := env("SERVER_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := env("SERVER_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigError("server.port", "invalid port "+strconv.Quote(v))
		}
		cfg.Server.Port = p
	}

	if v, ok := env("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := env("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
