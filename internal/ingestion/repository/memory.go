package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
)

// Memory is a process-local Store with the same constraints as the Postgres
// schema: unique fingerprints, cascading deletes, dense chunk indexes.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]ingestion.Document
	chunks map[string][]ingestion.Chunk
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs:   make(map[string]ingestion.Document),
		chunks: make(map[string][]ingestion.Chunk),
		now:    time.Now,
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateDocument(_ context.Context, doc *ingestion.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return fmt.Errorf("inserting document: id %s already exists", doc.ID)
	}
	if doc.Fingerprint != "" {
		for _, existing := range m.docs {
			if existing.Fingerprint == doc.Fingerprint {
				return duplicateOf(&existing)
			}
		}
	}
	now := m.now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	m.docs[doc.ID] = *doc
	return nil
}

func (m *Memory) FindByFingerprint(_ context.Context, fingerprint string) (*ingestion.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, doc := range m.docs {
		if fingerprint != "" && doc.Fingerprint == fingerprint {
			return m.withCount(doc), nil
		}
	}
	return nil, apperrors.ErrDocumentNotFound
}

func (m *Memory) GetDocument(_ context.Context, id string) (*ingestion.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperrors.ErrDocumentNotFound
	}
	return m.withCount(doc), nil
}

func (m *Memory) ListDocuments(_ context.Context, userID string) ([]ingestion.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []ingestion.Document
	for _, doc := range m.docs {
		if doc.UserID == userID {
			docs = append(docs, *m.withCount(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, status ingestion.Status, message string, from ...ingestion.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	if len(from) > 0 && !slices.Contains(from, doc.Status) {
		return fmt.Errorf("%w: %s is %s", ErrStatusConflict, id, doc.Status)
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage(status, message)
	doc.UpdatedAt = m.now()
	m.docs[id] = doc
	return nil
}

func (m *Memory) SetExtractedPath(_ context.Context, id, path string) error {
	return m.update(id, func(d *ingestion.Document) { d.ExtractedPath = path })
}

func (m *Memory) SetFileReference(_ context.Context, id, ref string) error {
	return m.update(id, func(d *ingestion.Document) { d.FileReference = ref })
}

func (m *Memory) update(id string, fn func(*ingestion.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	fn(&doc)
	doc.UpdatedAt = m.now()
	m.docs[id] = doc
	return nil
}

func (m *Memory) ListChunks(_ context.Context, documentID string) ([]ingestion.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.chunks[documentID]), nil
}

func (m *Memory) ReplaceChunks(_ context.Context, documentID string, chunks []ingestion.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, documentID)
	}
	seenVector := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk indexes must be dense from 0: got %d at position %d", c.Index, i)
		}
		if _, dup := seenVector[c.VectorID]; dup {
			return fmt.Errorf("duplicate vector id %s", c.VectorID)
		}
		seenVector[c.VectorID] = struct{}{}
	}
	now := m.now()
	stored := make([]ingestion.Chunk, len(chunks))
	for i, c := range chunks {
		c.DocumentID = documentID
		c.CreatedAt = now
		stored[i] = c
	}
	if len(stored) == 0 {
		delete(m.chunks, documentID)
		return nil
	}
	m.chunks[documentID] = stored
	return nil
}

func (m *Memory) DeleteChunks(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, documentID)
	return nil
}

func (m *Memory) DeleteDocument(_ context.Context, id string) (*Removal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	removed := &Removal{FileReference: doc.FileReference, Chunks: m.chunks[id]}
	delete(m.chunks, id)
	delete(m.docs, id)
	return removed, nil
}

// withCount must be called with m.mu held.
func (m *Memory) withCount(doc ingestion.Document) *ingestion.Document {
	doc.ChunkCount = len(m.chunks[doc.ID])
	return &doc
}

var _ Store = (*Memory)(nil)
