// Package knowledge registers extracted document text with an external
// knowledge-file store. Registration is best-effort: callers log failures
// and carry on.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/objectstore"
)

// File is the extracted text of one document plus the provenance stored
// alongside it.
type File struct {
	DocumentID string
	Name       string
	UserID     string
	Text       string
}

// Registrar registers knowledge files and returns an external reference.
type Registrar interface {
	Register(ctx context.Context, f File) (string, error)
	Unregister(ctx context.Context, ref string) error
}

// StoreRegistrar writes knowledge files into an object store under a key
// prefix. References are the store's URIs.
type StoreRegistrar struct {
	store  objectstore.Store
	prefix string
	logger *slog.Logger
}

func NewStoreRegistrar(store objectstore.Store, prefix string) *StoreRegistrar {
	return &StoreRegistrar{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: slog.Default().With("component", "knowledge-registrar"),
	}
}

func (r *StoreRegistrar) key(f File) string {
	return path.Join(r.prefix, f.UserID, f.DocumentID+".txt")
}

func (r *StoreRegistrar) Register(ctx context.Context, f File) (string, error) {
	if f.DocumentID == "" {
		return "", fmt.Errorf("registering knowledge file: document id is required")
	}
	key := r.key(f)
	if err := r.store.Put(ctx, key, []byte(f.Text), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("registering knowledge file for %s: %w", f.DocumentID, err)
	}
	ref := r.store.URI(key)
	r.logger.Debug("knowledge file registered", "doc_id", f.DocumentID, "ref", ref)
	return ref, nil
}

// Unregister removes the file behind ref. Empty or foreign references are
// ignored.
func (r *StoreRegistrar) Unregister(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	base := r.store.URI("")
	if !strings.HasPrefix(ref, base) {
		r.logger.Warn("ignoring foreign knowledge reference", "ref", ref)
		return nil
	}
	key := strings.TrimLeft(strings.TrimPrefix(ref, base), "/")
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("unregistering knowledge file %s: %w", ref, err)
	}
	return nil
}

// Noop accepts every registration without storing anything.
type Noop struct{}

func (Noop) Register(context.Context, File) (string, error) { return "", nil }
func (Noop) Unregister(context.Context, string) error      { return nil }

var (
	_ Registrar = (*StoreRegistrar)(nil)
	_ Registrar = Noop{}
)
