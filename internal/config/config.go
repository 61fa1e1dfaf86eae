// Package config loads storysync settings from YAML or TOML files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/storysync/internal/protocol"
	"github.com/iudanet/storysync/internal/storage"
)

// Переменные окружения, перекрывающие файл
const (
	EnvDSN      = "STORYSYNC_DSN"
	EnvLogLevel = "STORYSYNC_LOG_LEVEL"
)

// Ошибки валидации
var (
	ErrDSNEmpty          = errors.New("storage dsn must not be empty")
	ErrUnknownBackend    = errors.New("unknown storage backend")
	ErrInvalidDuration   = errors.New("duration must be positive")
	ErrInvalidRetries    = errors.New("max retries must be positive")
	ErrUnknownLogLevel   = errors.New("unknown log level")
	ErrUnknownLogFormat  = errors.New("unknown log format")
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)

// Config is the full application configuration
type Config struct {
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Autosave AutosaveConfig `yaml:"autosave" toml:"autosave"`
}

// StorageConfig selects and tunes the backend
type StorageConfig struct {
	// DSN выбирает бэкенд: sqlite://path, postgres://..., bolt://path,
	// file://dir или просто путь (движок по расширению)
	DSN              string        `yaml:"dsn" toml:"dsn"`
	CacheSize        int           `yaml:"cache_size" toml:"cache_size"`
	OperationTimeout time.Duration `yaml:"operation_timeout" toml:"operation_timeout"`
}

// AutosaveConfig tunes the autosave manager
type AutosaveConfig struct {
	Debounce      time.Duration `yaml:"debounce" toml:"debounce"`
	MaxInterval   time.Duration `yaml:"max_interval" toml:"max_interval"`
	Tick          time.Duration `yaml:"tick" toml:"tick"`
	MaxRetries    int           `yaml:"max_retries" toml:"max_retries"`
	ConflictCheck bool          `yaml:"conflict_check" toml:"conflict_check"`
}

// SyncConfig tunes conflict handling
type SyncConfig struct {
	Strategy       string        `yaml:"strategy" toml:"strategy"`
	ConflictWindow time.Duration `yaml:"conflict_window" toml:"conflict_window"`
}

// LogConfig configures logging
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" toml:"format"` // text или json
	File       string `yaml:"file" toml:"file"`     // пусто: stderr
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Storage: StorageConfig{
			DSN:              "sqlite://storysync.db",
			CacheSize:        50,
			OperationTimeout: 30 * time.Second,
		},
		Autosave: AutosaveConfig{
			Debounce:      2 * time.Second,
			MaxInterval:   30 * time.Second,
			Tick:          500 * time.Millisecond,
			MaxRetries:    3,
			ConflictCheck: true,
		},
		Sync: SyncConfig{
			Strategy:       string(protocol.LastWriteWins),
			ConflictWindow: protocol.DefaultConflictWindow,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path yields the defaults. The format is chosen by extension:
// .yaml/.yml or .toml. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDSN); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks value ranges and names
func (c Config) Validate() error {
	if c.Storage.DSN == "" {
		return ErrDSNEmpty
	}
	if scheme := storage.SchemeOf(c.Storage.DSN); !isKnownScheme(scheme) {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, scheme)
	}

	for name, d := range map[string]time.Duration{
		"autosave.debounce":     c.Autosave.Debounce,
		"autosave.max_interval": c.Autosave.MaxInterval,
		"autosave.tick":         c.Autosave.Tick,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, ErrInvalidDuration)
		}
	}
	if c.Sync.ConflictWindow < 0 {
		return fmt.Errorf("sync.conflict_window: %w", ErrInvalidDuration)
	}
	if c.Autosave.MaxRetries <= 0 {
		return ErrInvalidRetries
	}

	if _, err := protocol.ParseStrategy(c.Sync.Strategy); err != nil {
		return fmt.Errorf("sync.strategy: %w", err)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogFormat, c.Log.Format)
	}
	return nil
}

// isKnownScheme проверяет схему по фиксированному списку, а не по реестру:
// движки регистрируются в main через blank import
func isKnownScheme(scheme string) bool {
	switch scheme {
	case "sqlite", "postgres", "bolt", "file":
		return true
	}
	return false
}
