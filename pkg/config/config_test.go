package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Steve-IX/Ezra/pkg/config"
)

// Load() must boot a development companion with no environment at all.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "LOG_LEVEL", "EZRA_DATA_DIR", "EZRA_DEFAULT_PROVIDER", "EZRA_FALLBACK_PROVIDERS", "EZRA_PROVIDER_TIMEOUT", "EZRA_ARCHIVE_TYPE", "EZRA_LEDGER", "EZRA_KEY_FILE"} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, filepath.Join("data", "companion.key"), cfg.KeyFile)
	assert.Empty(t, cfg.FallbackProviders)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 24*time.Hour, cfg.PlanTTL)
	assert.Equal(t, "fs", cfg.Archive.Type)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EZRA_FALLBACK_PROVIDERS", "anthropic, ollama ,")
	t.Setenv("EZRA_PROVIDER_TIMEOUT", "15s")
	t.Setenv("EZRA_PRODUCTION", "true")
	t.Setenv("DATABASE_URL", "postgres://ezra@db:5432/ezra")
	t.Setenv("EZRA_RATE_LIMIT_RPS", "2.5")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, []string{"anthropic", "ollama"}, cfg.FallbackProviders)
	assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.Production)
	assert.Equal(t, "postgres://ezra@db:5432/ezra", cfg.DatabaseURL)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"bad port", func(c *config.Config) { c.Port = "http" }},
		{"bad level", func(c *config.Config) { c.LogLevel = "TRACE" }},
		{"bad seed", func(c *config.Config) { c.SigningSeedHex = "xyz" }},
		{"s3 without bucket", func(c *config.Config) { c.Archive.Type = "s3" }},
		{"gcs without bucket", func(c *config.Config) { c.Archive.Type = "gcs" }},
		{"unknown archive", func(c *config.Config) { c.Archive.Type = "ftp" }},
		{"unknown ledger", func(c *config.Config) { c.Ledger = "mongo" }},
		{"zero ttl", func(c *config.Config) { c.PlanTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Load()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadProviders(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - kind: openai
    model: gpt-4o-mini
    api_key_env: TEST_OPENAI_KEY
    requests_per_minute: 500
  - name: local
    kind: ollama
    model: llama3.1
    base_url: http://localhost:11434
`), 0o600))

	providers, err := config.LoadProviders(path)
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, "openai", providers[0].Name)
	assert.Equal(t, "sk-test", providers[0].APIKey)
	assert.Equal(t, 500, providers[0].RequestsPerMinute)
	assert.Equal(t, "local", providers[1].Name)
}

func TestLoadProviders_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.yaml":   "providers:\n  - kind: cohere\n",
		"missing.yaml":   "providers:\n  - name: x\n",
		"duplicate.yaml": "providers:\n  - kind: openai\n  - kind: openai\n",
		"garbage.yaml":   "providers: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := config.LoadProviders(path)
			assert.Error(t, err)
		})
	}

	_, err := config.LoadProviders(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestProvidersFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-1")
	t.Setenv("ANTHROPIC_MODEL", "claude-test")

	providers := config.ProvidersFromEnv()
	require.Len(t, providers, 4)
	assert.Equal(t, []string{"openai", "anthropic", "google", "ollama"},
		[]string{providers[0].Name, providers[1].Name, providers[2].Name, providers[3].Name})
	assert.Equal(t, "sk-1", providers[0].APIKey)
	assert.Equal(t, "claude-test", providers[1].Model)
}
