// Package config loads the settings of the wabuilder binary.
// Priority: WABUILDER_* environment variables > config file > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverLibSQL = "libsql"
)

// DefaultPath is read when --config is not given.
const DefaultPath = "wabuilder.yaml"

// Config represents the configuration file (YAML or JSON).
type Config struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	SiteURL     string `yaml:"site_url" json:"site_url"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`

	// ConfigName is the record used when a request names none.
	ConfigName   string `yaml:"config_name" json:"config_name"`
	HistoryLimit int    `yaml:"history_limit" json:"history_limit"`
	// ValidateSchema checks imported files against the flow JSON Schema.
	ValidateSchema bool `yaml:"validate_schema" json:"validate_schema"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Messages MessagesConfig `yaml:"messages" json:"messages"`
	Privacy  PrivacyConfig  `yaml:"privacy" json:"privacy"`
}

// PrivacyConfig protects data at rest.
type PrivacyConfig struct {
	// EncryptionKey is a base64 AES-256 key sealing the WhatsApp credentials of every record.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	// FallbackKeys decrypt records sealed before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys"`
	// MaskProps lists patterns of user prop names masked before they reach the session cache.
	MaskProps []string `yaml:"mask_props" json:"mask_props"`
}

// StoreConfig selects where configuration records and session entries live.
type StoreConfig struct {
	Driver     string `yaml:"driver" json:"driver"`
	RedisURL   string `yaml:"redis_url" json:"redis_url"`
	LibSQLPath string `yaml:"libsql_path" json:"libsql_path"`
}

// MessagesConfig selects the message log. An empty DSN keeps it in memory.
type MessagesConfig struct {
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		ConfigName: domain.DefaultConfigName,
		Store: StoreConfig{
			Driver:     DriverMemory,
			RedisURL:   "redis://localhost:6379/0",
			LibSQLPath: "wabuilder.db",
		},
	}
}

// Load reads path on top of the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, err
		}
	case os.IsNotExist(err):
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"WABUILDER_LISTEN_ADDR":    &cfg.ListenAddr,
		"WABUILDER_SITE_URL":       &cfg.SiteURL,
		"WABUILDER_METRICS_ADDR":   &cfg.MetricsAddr,
		"WABUILDER_LOG_LEVEL":      &cfg.LogLevel,
		"WABUILDER_CONFIG_NAME":    &cfg.ConfigName,
		"WABUILDER_STORE":          &cfg.Store.Driver,
		"WABUILDER_REDIS_URL":      &cfg.Store.RedisURL,
		"WABUILDER_LIBSQL_PATH":    &cfg.Store.LibSQLPath,
		"WABUILDER_POSTGRES_DSN":   &cfg.Messages.PostgresDSN,
		"WABUILDER_ENCRYPTION_KEY": &cfg.Privacy.EncryptionKey,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("WABUILDER_HISTORY_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WABUILDER_HISTORY_LIMIT: %w", err)
		}
		cfg.HistoryLimit = n
	}
	if v, ok := lookup("WABUILDER_VALIDATE_SCHEMA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WABUILDER_VALIDATE_SCHEMA: %w", err)
		}
		cfg.ValidateSchema = b
	}
	return nil
}

// Validate rejects settings the binary cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store driver %q needs redis_url", c.Store.Driver)
		}
	case DriverLibSQL:
		if c.Store.LibSQLPath == "" {
			return fmt.Errorf("store driver %q needs libsql_path", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
