package vectorsync

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/embedding"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGVectorIndex stores records in a Postgres table with a pgvector column,
// embedding text client-side. Similarity is cosine.
type PGVectorIndex struct {
	name       string
	db         *sql.DB
	table      string
	dimensions int
	embedder   embedding.Embedder
}

func NewPGVectorIndex(name string, db *sql.DB, table string, dimensions int, embedder embedding.Embedder) (*PGVectorIndex, error) {
	if table == "" {
		table = "chunk_vectors"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("pgvector index %s: invalid table name %q", name, table)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("pgvector index %s: dimensions must be positive", name)
	}
	if embedder == nil {
		return nil, fmt.Errorf("pgvector index %s: embedder is required", name)
	}
	return &PGVectorIndex{
		name:       name,
		db:         db,
		table:      table,
		dimensions: dimensions,
		embedder:   embedder,
	}, nil
}

// EnsureSchema creates the extension and table if missing.
func (p *PGVectorIndex) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %[1]s (
    id         TEXT PRIMARY KEY,
    text       TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '',
    embedding  vector(%[2]d) NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops);
`, p.table, p.dimensions)
	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating pgvector table %s: %w", p.table, err)
	}
	return nil
}

func (p *PGVectorIndex) Name() string { return p.name }

func (p *PGVectorIndex) UpsertRecords(ctx context.Context, records []Record) error {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d records: %w", len(records), err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedder returned %d vectors for %d records", len(vectors), len(records))
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, text, metadata, embedding, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE
SET text = EXCLUDED.text, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding, updated_at = now()`, p.table))
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, r.Metadata, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

func (p *PGVectorIndex) DeleteOne(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table), id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	return nil
}

func (p *PGVectorIndex) DeleteMany(ctx context.Context, ids []string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, p.table), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("deleting %d records: %w", len(ids), err)
	}
	return nil
}

func (p *PGVectorIndex) SearchRecords(ctx context.Context, query string, topK int) ([]Match, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for query", len(vectors))
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, text, metadata, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, p.table), pgvector.NewVector(vectors[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", p.table, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Text, &m.Metadata, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVectorIndex) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

var _ Index = (*PGVectorIndex)(nil)
