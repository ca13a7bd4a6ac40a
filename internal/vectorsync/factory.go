package vectorsync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/embedding"
)

// Backends carries the shared clients some index kinds need. DB and Embedder
// may be nil when no pgvector index is configured.
type Backends struct {
	DB       *sql.DB
	Embedder embedding.Embedder
}

// BuildIndexes constructs every configured index and splits out the default.
func BuildIndexes(ctx context.Context, cfg config.VectorConfig, b Backends) (Index, []Index, error) {
	var (
		def   Index
		extra []Index
	)
	for _, ic := range cfg.Indexes {
		idx, err := buildIndex(ctx, ic, b)
		if err != nil {
			return nil, nil, err
		}
		if ic.Name == cfg.Default {
			def = idx
			continue
		}
		extra = append(extra, idx)
	}
	if def == nil {
		return nil, nil, fmt.Errorf("default vector index %q is not configured", cfg.Default)
	}
	return def, extra, nil
}

func buildIndex(ctx context.Context, ic config.VectorIndexConfig, b Backends) (Index, error) {
	switch ic.Kind {
	case "memory":
		return NewMemoryIndex(ic.Name), nil
	case "records":
		return NewRecordsIndex(ic.Name, ic.URL, ic.APIKey, ic.Namespace)
	case "pgvector":
		if b.DB == nil {
			return nil, fmt.Errorf("pgvector index %s needs a database", ic.Name)
		}
		idx, err := NewPGVectorIndex(ic.Name, b.DB, ic.Table, ic.Dimensions, b.Embedder)
		if err != nil {
			return nil, err
		}
		if err := idx.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("vector index %s: unknown kind %q", ic.Name, ic.Kind)
	}
}

// NeedsEmbedder reports whether any configured index embeds client-side.
func NeedsEmbedder(cfg config.VectorConfig) bool {
	for _, ic := range cfg.Indexes {
		if ic.Kind == "pgvector" {
			return true
		}
	}
	return false
}
