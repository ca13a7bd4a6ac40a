package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/postgres"
	"github.com/lib/pq"
)

const fingerprintConstraint = "documents_fingerprint_key"

const documentColumns = `
	d.id, d.name, d.media_type, d.size_bytes, d.storage_path,
	COALESCE(d.extracted_path, ''), COALESCE(d.file_reference, ''), COALESCE(d.fingerprint, ''),
	d.status, COALESCE(d.error_message, ''), d.user_id, COALESCE(d.category_id, ''),
	(SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id),
	d.created_at, d.updated_at`

type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "document-repository"),
	}
}

// Migrate applies the embedded schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.db.Migrate(ctx, "documents", Schema)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) CreateDocument(ctx context.Context, doc *ingestion.Document) error {
	err := p.db.DB.QueryRowContext(ctx, `
		INSERT INTO documents (id, name, media_type, size_bytes, storage_path, fingerprint, status, user_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		doc.ID, doc.Name, doc.MediaType, doc.SizeBytes, doc.StoragePath,
		nullableString(doc.Fingerprint), doc.Status, doc.UserID, nullableString(doc.CategoryID),
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if postgres.IsUniqueViolation(err, fingerprintConstraint) {
		existing, findErr := p.FindByFingerprint(ctx, doc.Fingerprint)
		if findErr != nil {
			return fmt.Errorf("%w: %s", apperrors.ErrDuplicateContent, doc.Fingerprint)
		}
		return duplicateOf(existing)
	}
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (p *Postgres) FindByFingerprint(ctx context.Context, fingerprint string) (*ingestion.Document, error) {
	row := p.db.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.fingerprint = $1`, fingerprint)
	return scanDocument(row)
}

func (p *Postgres) GetDocument(ctx context.Context, id string) (*ingestion.Document, error) {
	row := p.db.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.id = $1`, id)
	return scanDocument(row)
}

func (p *Postgres) ListDocuments(ctx context.Context, userID string) ([]ingestion.Document, error) {
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.user_id = $1 ORDER BY d.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []ingestion.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, id string, status ingestion.Status, message string, from ...ingestion.Status) error {
	query := `UPDATE documents SET status = $2, error_message = $3, updated_at = now() WHERE id = $1`
	args := []any{id, status, nullableString(errorMessage(status, message))}
	if len(from) > 0 {
		states := make([]string, len(from))
		for i, s := range from {
			states[i] = string(s)
		}
		query += ` AND status = ANY($4)`
		args = append(args, pq.Array(states))
	}
	res, err := p.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	if n == 0 {
		if _, err := p.GetDocument(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrStatusConflict, id)
	}
	return nil
}

func (p *Postgres) SetExtractedPath(ctx context.Context, id, path string) error {
	return p.setColumn(ctx, id, "extracted_path", path)
}

func (p *Postgres) SetFileReference(ctx context.Context, id, ref string) error {
	return p.setColumn(ctx, id, "file_reference", ref)
}

// setColumn only ever receives column names from this file.
func (p *Postgres) setColumn(ctx context.Context, id, column, value string) error {
	res, err := p.db.DB.ExecContext(ctx,
		`UPDATE documents SET `+column+` = $2, updated_at = now() WHERE id = $1`, id, nullableString(value))
	if err != nil {
		return fmt.Errorf("setting %s of %s: %w", column, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	return nil
}

func (p *Postgres) ListChunks(ctx context.Context, documentID string) ([]ingestion.Chunk, error) {
	rows, err := p.db.DB.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, content, vector_id, created_at
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	return scanChunks(rows)
}

func (p *Postgres) ReplaceChunks(ctx context.Context, documentID string, chunks []ingestion.Chunk) error {
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, documentID)
		}
		if err != nil {
			return fmt.Errorf("locking document %s: %w", documentID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("clearing chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("chunks", "id", "document_id", "chunk_index", "content", "vector_id"))
		if err != nil {
			return fmt.Errorf("preparing chunk copy: %w", err)
		}
		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Index, c.Content, c.VectorID); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("copying chunk %d: %w", c.Index, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("flushing chunk copy: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("closing chunk copy: %w", err)
		}
		return nil
	})
}

func (p *Postgres) DeleteChunks(ctx context.Context, documentID string) error {
	if _, err := p.db.DB.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting chunks of %s: %w", documentID, err)
	}
	return nil
}

// DeleteDocument locks the document row before collecting its chunks, so a
// ReplaceChunks that committed first is seen in full and one that comes
// later finds the document gone.
func (p *Postgres) DeleteDocument(ctx context.Context, id string) (*Removal, error) {
	removed := &Removal{}
	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		var ref sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT file_reference FROM documents WHERE id = $1 FOR UPDATE`, id,
		).Scan(&ref)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("locking document: %w", err)
		}
		removed.FileReference = ref.String

		rows, err := tx.QueryContext(ctx, `
			DELETE FROM chunks WHERE document_id = $1
			RETURNING id, document_id, chunk_index, content, vector_id, created_at`, id)
		if err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		removed.Chunks, err = scanChunks(rows)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("document deleted", "doc_id", id, "chunks", len(removed.Chunks))
	return removed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*ingestion.Document, error) {
	var doc ingestion.Document
	err := s.Scan(
		&doc.ID, &doc.Name, &doc.MediaType, &doc.SizeBytes, &doc.StoragePath,
		&doc.ExtractedPath, &doc.FileReference, &doc.Fingerprint,
		&doc.Status, &doc.ErrorMessage, &doc.UserID, &doc.CategoryID,
		&doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

func scanChunks(rows *sql.Rows) ([]ingestion.Chunk, error) {
	defer rows.Close()
	var chunks []ingestion.Chunk
	for rows.Next() {
		var c ingestion.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.VectorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}

func duplicateOf(doc *ingestion.Document) *apperrors.DuplicateError {
	return &apperrors.DuplicateError{
		ExistingID:      doc.ID,
		ExistingOwnerID: doc.UserID,
		ExistingName:    doc.Name,
	}
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Store = (*Postgres)(nil)
