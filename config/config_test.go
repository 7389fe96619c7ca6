package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  enable_playground: false
nats:
  url: nats://broker:4222
auth:
  signing_secret: s3cret
  admin_secret: admin
storage:
  mode: nats
cache:
  strategy: feed
fanout:
  workers: 4
  queue_size: 64
  delivery_timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Server.EnablePlayground)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, StorageModeNATS, cfg.Storage.Mode)
	assert.Equal(t, CacheStrategyFeed, cfg.Cache.Strategy)
	assert.Equal(t, 4, cfg.Fanout.Workers)
	assert.Equal(t, 5*time.Second, cfg.Fanout.DeliveryTimeout)
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("FDR_SIGNING_SECRET", "env-secret")
	t.Setenv("FDR_STORAGE_MODE", "memory")
	t.Setenv("FDR_CACHE_STRATEGY", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "env-secret", cfg.Auth.SigningSecret)
	assert.Equal(t, StorageModeMemory, cfg.Storage.Mode)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
auth:
  signing_secret: from-file
storage:
  mode: memory
cache:
  strategy: local
`)
	t.Setenv("FDR_SIGNING_SECRET", "from-env")
	t.Setenv("FDR_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.SigningSecret)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing signing secret", func(c *Config) { c.Auth.SigningSecret = "" }},
		{"unknown storage mode", func(c *Config) { c.Storage.Mode = "postgres" }},
		{"unknown cache strategy", func(c *Config) { c.Cache.Strategy = "psychic" }},
		{"feed strategy over memory storage", func(c *Config) {
			c.Storage.Mode = StorageModeMemory
			c.Cache.Strategy = CacheStrategyFeed
		}},
		{"nats mode without url", func(c *Config) { c.NATS.URL = "" }},
		{"zero workers", func(c *Config) { c.Fanout.Workers = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.SigningSecret = "s"
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
