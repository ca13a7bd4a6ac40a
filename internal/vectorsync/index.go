// Package vectorsync replicates chunk records across every configured remote
// vector index and routes similarity queries to a single named index.
package vectorsync

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by an Index when a delete targets an id the
// index does not hold. The Synchronizer treats it as already deleted.
var ErrRecordNotFound = errors.New("record not found in index")

// Record is one chunk as stored in a remote index. Metadata is the encoded
// ChunkMetadata string.
type Record struct {
	ID       string
	Text     string
	Metadata string
}

// Match is one raw search result from an index.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata string
}

// Index is a single named, URL-addressed vector collection.
type Index interface {
	Name() string
	UpsertRecords(ctx context.Context, records []Record) error
	DeleteOne(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) error
	SearchRecords(ctx context.Context, query string, topK int) ([]Match, error)
	Ping(ctx context.Context) error
}
