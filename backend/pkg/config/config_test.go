package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("FANOUT_CONCURRENCY", "")
	t.Setenv("CASCADE_TIMEOUT", "")
	t.Setenv("SEED_USERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, 16, cfg.FanoutConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CascadeTimeout)
	assert.Empty(t, cfg.SeedUsers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("FANOUT_CONCURRENCY", "4")
	t.Setenv("FANOUT_BATCH_SIZE", "not-a-number")
	t.Setenv("CASCADE_TIMEOUT", "2s")
	t.Setenv("SEED_USERS", "alice, bob,,carol ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.FanoutConcurrency)
	assert.Equal(t, 500, cfg.FanoutBatchSize)
	assert.Equal(t, 2*time.Second, cfg.CascadeTimeout)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.SeedUsers)
}

func TestValidate(t *testing.T) {
	base := Config{
		Storage:           StorageExternal,
		Neo4jURI:          "bolt://localhost:7687",
		Neo4jUser:         "neo4j",
		Neo4jPassword:     "password",
		RedisAddr:         "localhost:6379",
		DatabaseURL:       "postgres://localhost/fritter",
		FanoutConcurrency: 1,
		FanoutBatchSize:   1,
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage = "disk" }},
		{"missing neo4j uri", func(c *Config) { c.Neo4jURI = "" }},
		{"missing redis", func(c *Config) { c.RedisAddr = "" }},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"zero concurrency", func(c *Config) { c.FanoutConcurrency = 0 }},
		{"zero batch", func(c *Config) { c.FanoutBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	memory := Config{Storage: StorageMemory, FanoutConcurrency: 1, FanoutBatchSize: 1}
	assert.NoError(t, memory.Validate())
}
