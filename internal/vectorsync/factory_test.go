package vectorsync

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexes(t *testing.T) {
	cfg := config.VectorConfig{
		Default: "hosted",
		Indexes: []config.VectorIndexConfig{
			{Name: "scratch", Kind: "memory"},
			{Name: "hosted", Kind: "records", URL: "https://example.invalid"},
		},
	}
	def, extra, err := BuildIndexes(context.Background(), cfg, Backends{})
	require.NoError(t, err)
	assert.Equal(t, "hosted", def.Name())
	require.Len(t, extra, 1)
	assert.Equal(t, "scratch", extra[0].Name())
	assert.False(t, NeedsEmbedder(cfg))
}

func TestBuildIndexes_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.VectorConfig
	}{
		{"unknown kind", config.VectorConfig{Default: "a", Indexes: []config.VectorIndexConfig{{Name: "a", Kind: "faiss"}}}},
		{"pgvector without db", config.VectorConfig{Default: "a", Indexes: []config.VectorIndexConfig{{Name: "a", Kind: "pgvector", Dimensions: 768}}}},
		{"missing default", config.VectorConfig{Default: "z", Indexes: []config.VectorIndexConfig{{Name: "a", Kind: "memory"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := BuildIndexes(context.Background(), tt.cfg, Backends{})
			assert.Error(t, err)
		})
	}
}

func TestNewPGVectorIndex_Validation(t *testing.T) {
	_, err := NewPGVectorIndex("v", nil, "drop table; --", 768, nil)
	assert.Error(t, err)
	_, err = NewPGVectorIndex("v", nil, "chunk_vectors", 0, nil)
	assert.Error(t, err)
	_, err = NewPGVectorIndex("v", nil, "chunk_vectors", 768, nil)
	assert.Error(t, err)
}
