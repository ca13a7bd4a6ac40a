// Package repository persists Document and Chunk records. Postgres is the
// production store; Memory backs tests and single-process development.
package repository

import (
	"context"
	_ "embed"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
)

//go:embed schema.sql
var Schema string

// ErrStatusConflict is returned by a conditional UpdateStatus when the
// document is not in any of the expected states.
var ErrStatusConflict = errors.New("document status changed concurrently")

// defaultErrorMessage keeps error rows valid when a caller passes no message.
const defaultErrorMessage = "processing failed"

// Store is the persistence contract of the orchestrator. Missing documents
// are reported with apperrors.ErrDocumentNotFound.
type Store interface {
	// CreateDocument inserts doc. A fingerprint collision returns
	// *apperrors.DuplicateError describing the existing document.
	CreateDocument(ctx context.Context, doc *ingestion.Document) error
	FindByFingerprint(ctx context.Context, fingerprint string) (*ingestion.Document, error)
	GetDocument(ctx context.Context, id string) (*ingestion.Document, error)
	ListDocuments(ctx context.Context, userID string) ([]ingestion.Document, error)
	// UpdateStatus moves id to status. When from is non-empty the update only
	// applies if the current status is one of from, else ErrStatusConflict.
	// The message is stored for StatusError and cleared otherwise.
	UpdateStatus(ctx context.Context, id string, status ingestion.Status, message string, from ...ingestion.Status) error
	SetExtractedPath(ctx context.Context, id, path string) error
	SetFileReference(ctx context.Context, id, ref string) error
	ListChunks(ctx context.Context, documentID string) ([]ingestion.Chunk, error)
	// ReplaceChunks swaps the document's chunk set atomically. It fails with
	// ErrDocumentNotFound if the document was deleted meanwhile.
	ReplaceChunks(ctx context.Context, documentID string, chunks []ingestion.Chunk) error
	DeleteChunks(ctx context.Context, documentID string) error
	// DeleteDocument removes the document and its chunks. The returned
	// Removal reflects the rows as they were when deleted, including writes
	// a concurrent run committed after the caller last read them.
	DeleteDocument(ctx context.Context, id string) (*Removal, error)
	Ping(ctx context.Context) error
}

// Removal is what DeleteDocument took out of the store.
type Removal struct {
	FileReference string
	Chunks        []ingestion.Chunk
}

func errorMessage(status ingestion.Status, msg string) string {
	if status != ingestion.StatusError {
		return ""
	}
	if msg == "" {
		return defaultErrorMessage
	}
	return msg
}
