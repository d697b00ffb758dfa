package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Assignment.MaxPerTopic)
	assert.Equal(t, 3, cfg.Generation.TitleRetryMax)
	assert.Equal(t, 120*time.Second, cfg.Publish.MinDelay)
	assert.Equal(t, 4, cfg.Publish.PoolSize)
	assert.Equal(t, 50, cfg.Publish.TickCap)
	assert.Equal(t, 10*time.Minute, cfg.Publish.TickBudget)
	assert.Equal(t, 15*time.Minute, cfg.Schedule.PublishCadence)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
store:
  backend: sqlite
  sqlite_path: /tmp/autoposter.db
publish:
  min_delay: 3m
  pool_size: 2
discovery:
  sources:
    - name: hot
      kind: rss
      url: https://forum.example.com/hot.rss
      max_age: 48h
`)
	t.Setenv(EnvConfigPath, "")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 3*time.Minute, cfg.Publish.MinDelay)
	assert.Equal(t, 2, cfg.Publish.PoolSize)
	assert.Equal(t, 50, cfg.Publish.TickCap)
	require.Len(t, cfg.Discovery.Sources, 1)
	assert.Equal(t, 48*time.Hour, cfg.Discovery.Sources[0].MaxAge)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "log: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvPath(t *testing.T) {
	path := writeConfig(t, "assignment:\n  max_assignments_per_topic: 5\n")
	t.Setenv(EnvConfigPath, path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Assignment.MaxPerTopic)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":      "postgres://localhost/autoposter",
		"STORE_BACKEND":     "postgres",
		"REDIS_ADDR":        "localhost:6379",
		"REDIS_DB":          "2",
		"PLATFORM_BASE_URL": "https://api.forum.example.com",
		"BCRYPT_COST":       "10",
		"LOG_LEVEL":         "",

		"CLASSIFY_LEXICON_PATH": "/etc/autoposter/lexicon.yaml",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/autoposter", cfg.Store.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.Sessions.RedisAddr)
	assert.Equal(t, 2, cfg.Sessions.RedisDB)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, "/etc/autoposter/lexicon.yaml", cfg.Classify.LexiconPath)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")
	require.NoError(t, cfg.Validate())

	env["REDIS_DB"] = "two"
	assert.Error(t, Default().ApplyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"postgres without url", func(c *Config) { c.Store.Backend = "postgres" }, true},
		{"gsheets without spreadsheet", func(c *Config) { c.Store.Backend = "gsheets" }, true},
		{"gsheets with spreadsheet", func(c *Config) {
			c.Store.Backend = "gsheets"
			c.Store.SpreadsheetID = "sheet-id"
		}, false},
		{"zero cap", func(c *Config) { c.Assignment.MaxPerTopic = 0 }, true},
		{"zero pool", func(c *Config) { c.Publish.PoolSize = 0 }, true},
		{"short cadence", func(c *Config) { c.Schedule.PublishCadence = 30 * time.Second }, true},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"bad platform url", func(c *Config) { c.Publish.PlatformBaseURL = "not a url" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultPath(), filepath.Join("autoposter", "config.yaml")))
}
