package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/storysync/internal/protocol"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Storage.CacheSize)
	assert.Equal(t, 2*time.Second, cfg.Autosave.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Autosave.MaxInterval)
	assert.Equal(t, protocol.DefaultConflictWindow, cfg.Sync.ConflictWindow)
}

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Formats(t *testing.T) {
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvLogLevel, "")

	yamlConfig := `
storage:
  dsn: bolt:///tmp/stories.bolt
  cache_size: 10
autosave:
  debounce: 1s
  conflict_check: false
sync:
  strategy: keep_both
log:
  format: json
`
	tomlConfig := `
[storage]
dsn = "bolt:///tmp/stories.bolt"
cache_size = 10

[autosave]
debounce = "1s"
conflict_check = false

[sync]
strategy = "keep_both"

[log]
format = "json"
`

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "yaml", file: "storysync.yaml", content: yamlConfig},
		{name: "yml", file: "storysync.yml", content: yamlConfig},
		{name: "toml", file: "storysync.toml", content: tomlConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, "bolt:///tmp/stories.bolt", cfg.Storage.DSN)
			assert.Equal(t, 10, cfg.Storage.CacheSize)
			assert.Equal(t, time.Second, cfg.Autosave.Debounce)
			assert.False(t, cfg.Autosave.ConflictCheck)
			assert.Equal(t, "keep_both", cfg.Sync.Strategy)
			assert.Equal(t, "json", cfg.Log.Format)

			// Незаданные поля берутся из значений по умолчанию
			assert.Equal(t, 30*time.Second, cfg.Autosave.MaxInterval)
			assert.Equal(t, "info", cfg.Log.Level)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDSN, "file:///var/stories")
	t.Setenv(EnvLogLevel, "DEBUG")

	path := writeFile(t, "storysync.yaml", "storage:\n  dsn: sqlite://a.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file:///var/stories", cfg.Storage.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvDSN, "")
	t.Setenv(EnvLogLevel, "")

	_, err := Load(writeFile(t, "storysync.ini", "dsn=x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "storage: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "sync:\n  strategy: coin_flip\n"))
	assert.ErrorIs(t, err, protocol.ErrUnknownStrategy)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		modify  func(*Config)
		name    string
	}{
		{name: "empty dsn", modify: func(c *Config) { c.Storage.DSN = "" }, wantErr: ErrDSNEmpty},
		{name: "unknown scheme", modify: func(c *Config) { c.Storage.DSN = "redis://localhost" }, wantErr: ErrUnknownBackend},
		{name: "postgresql alias", modify: func(c *Config) { c.Storage.DSN = "postgresql://u@h/db" }},
		{name: "plain path", modify: func(c *Config) { c.Storage.DSN = "stories" }},
		{name: "zero debounce", modify: func(c *Config) { c.Autosave.Debounce = 0 }, wantErr: ErrInvalidDuration},
		{name: "negative window", modify: func(c *Config) { c.Sync.ConflictWindow = -time.Second }, wantErr: ErrInvalidDuration},
		{name: "zero window", modify: func(c *Config) { c.Sync.ConflictWindow = 0 }},
		{name: "zero retries", modify: func(c *Config) { c.Autosave.MaxRetries = 0 }, wantErr: ErrInvalidRetries},
		{name: "bad strategy", modify: func(c *Config) { c.Sync.Strategy = "" }, wantErr: protocol.ErrUnknownStrategy},
		{name: "bad level", modify: func(c *Config) { c.Log.Level = "trace" }, wantErr: ErrUnknownLogLevel},
		{name: "bad format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: ErrUnknownLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
