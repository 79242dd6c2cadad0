package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path := filepath.Join(dir, "doomclock", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefaults verifies all default values are applied when no file exists.
func TestDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/xdg-data/doomclock", cfg.Storage.DataDir)
	assert.Equal(t, "sqlite", cfg.Storage.GuestbookBackend)
	assert.Equal(t, "ollama", cfg.Agent.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.Agent.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Agent.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFileValues(t *testing.T) {
	writeTempConfig(t, `
server:
  port: 9090
storage:
  guestbook_backend: redis
redis:
  addr: cache:6379
  db: 2
agent:
  model: qwen2.5
  timeout: 45s
worker:
  stale_after: 30m
log:
  format: console
`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Storage.GuestbookBackend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "qwen2.5", cfg.Agent.Model)
	assert.Equal(t, 45*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StaleAfter)
	assert.Equal(t, "console", cfg.Log.Format)
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	writeTempConfig(t, "server:\n  port: 9090\nagent:\n  timeout: 45s\n")
	t.Setenv("DOOMCLOCK_SERVER_PORT", "7070")
	t.Setenv("DOOMCLOCK_AGENT_TIMEOUT", "5s")
	t.Setenv("DOOMCLOCK_AGENT_PROVIDER", "openai")
	t.Setenv("DOOMCLOCK_AGENT_API_KEY", "sk-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "openai", cfg.Agent.Provider)
	assert.Equal(t, "sk-env", cfg.Agent.APIKey)
}

func TestEnvOverride_BadValuesKeepDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DOOMCLOCK_SERVER_PORT", "eighty")
	t.Setenv("DOOMCLOCK_WORKER_POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
}

func TestSecretsIgnoredInFile(t *testing.T) {
	writeTempConfig(t, "agent:\n  provider: openai\n  api_key: from-file\n")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOOMCLOCK_AGENT_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"backend", func(c *Config) { c.Storage.GuestbookBackend = "dynamo" }},
		{"redis addr", func(c *Config) { c.Storage.GuestbookBackend = "redis"; c.Redis.Addr = "" }},
		{"provider", func(c *Config) { c.Agent.Provider = "bard" }},
		{"base url", func(c *Config) { c.Agent.BaseURL = "not a url" }},
		{"timeout", func(c *Config) { c.Agent.Timeout = 0 }},
		{"stale", func(c *Config) { c.Worker.StaleAfter = -time.Second }},
		{"level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := defaults()
	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate(), "redis addr only matters for the redis backend")
}

func TestInvalidFile(t *testing.T) {
	writeTempConfig(t, "server: [unclosed")
	_, err := Load()
	assert.Error(t, err)

	writeTempConfig(t, "agent:\n  timeout: forever\n")
	_, err = Load()
	assert.Error(t, err)
}

func TestSetKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	require.NoError(t, SetKey("server.port", "9191"))
	require.NoError(t, SetKey("agent.timeout", "90s"))
	require.NoError(t, SetKey("agent.model", "mistral"))

	assert.Error(t, SetKey("server.port", "abc"))
	assert.Error(t, SetKey("agent.timeout", "later"))
	assert.Error(t, SetKey("agent.api_key", "sk"))
	assert.Error(t, SetKey("nope", "x"))

	raw, err := os.ReadFile(ConfigFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "port: 9191")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, "mistral", cfg.Agent.Model)
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Agent.APIKey = "sk-secret"

	infos := ShowAll(cfg)
	assert.Len(t, infos, len(ValidKeys()))
	for _, info := range infos {
		assert.NotEqual(t, "agent.api_key", info.Key)
		assert.NotContains(t, info.Value, "sk-secret")
		assert.NotEmpty(t, info.EnvVar)
	}
}
