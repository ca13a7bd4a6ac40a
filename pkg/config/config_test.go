package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Ingestion.TargetChunkSize)
	assert.InDelta(t, 0.1, cfg.Ingestion.OverlapRatio, 1e-9)
	assert.Equal(t, 3, cfg.Vector.TopK)
	assert.Equal(t, "default", cfg.Vector.Default)
	assert.Equal(t, "pool", cfg.Ingestion.Dispatcher)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
ingestion:
  targetChunkSize: 500
  dispatcher: pool
vector:
  default: secondary
  indexes:
    - name: primary
      kind: memory
    - name: secondary
      kind: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("KI_SERVER_PORT", "9999")
	t.Setenv("KI_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Ingestion.TargetChunkSize)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "secondary", cfg.Vector.Default)
	assert.Len(t, cfg.Vector.Indexes, 2)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Ingestion.TargetChunkSize = 0 }},
		{"overlap ratio of one", func(c *Config) { c.Ingestion.OverlapRatio = 1 }},
		{"unknown dispatcher", func(c *Config) { c.Ingestion.Dispatcher = "sqs" }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "gcs" }},
		{"no indexes", func(c *Config) { c.Vector.Indexes = nil }},
		{"duplicate index", func(c *Config) {
			c.Vector.Indexes = append(c.Vector.Indexes, c.Vector.Indexes[0])
		}},
		{"unknown default", func(c *Config) { c.Vector.Default = "missing" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_DefaultsToFirstIndex(t *testing.T) {
	cfg := Default()
	cfg.Vector.Default = ""
	cfg.Vector.Indexes = []VectorIndexConfig{{Name: "alpha", Kind: "memory"}}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "alpha", cfg.Vector.Default)
}

func TestDefault_UsesDeterministicChunker(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Ingestion.SemanticSplitter)
	assert.Equal(t, 1000, cfg.Ingestion.TargetChunkSize)
	assert.Equal(t, 0.1, cfg.Ingestion.OverlapRatio)
}
