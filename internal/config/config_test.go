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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.ChunkOverlap)
	assert.Equal(t, DefaultEmbeddingDimensions, cfg.EmbeddingDimensions)
	assert.Equal(t, "simple", cfg.TextChunkerMode)
	assert.Equal(t, 20, cfg.MaxTopK)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay())
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
chunk_size: 500
chunk_overlap: 50
text_chunker_mode: structured
max_top_k: 10
storage:
  endpoint: "minio:9000"
  bucket: "docs"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, "structured", cfg.TextChunkerMode)
	assert.Equal(t, 10, cfg.MaxTopK)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "docs", cfg.Storage.Bucket)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `listen_addr: ":9000"`)
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("CHUNK_SIZE", "333")
	t.Setenv("FAKE_LLM", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, 333, cfg.ChunkSize)
	assert.True(t, cfg.FakeLLM)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"overlap at chunk size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }},
		{"unknown chunker mode", func(c *Config) { c.TextChunkerMode = "semantic" }},
		{"zero top k", func(c *Config) { c.MaxTopK = 0 }},
		{"zero conversation cap", func(c *Config) { c.MaxConversationMessages = 0 }},
		{"unknown cache backend", func(c *Config) { c.EmbeddingCacheBackend = "disk" }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelaySeconds = 0.1 }},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }},
		{"zero worker concurrency", func(c *Config) { c.WorkerConcurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen_addr: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}
