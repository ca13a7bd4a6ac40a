// Package objectstore stores document blobs (original uploads, extracted
// text, knowledge files) in S3 or on the local filesystem behind one
// interface.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store. Delete of a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URI returns a stable external reference for key, such as s3://bucket/key.
	URI(key string) string
	Ping(ctx context.Context) error
}

// New builds the Store selected by cfg.Backend for the given bucket. An
// empty bucket means cfg.Bucket.
func New(ctx context.Context, cfg config.StorageConfig, bucket string) (Store, error) {
	if bucket == "" {
		bucket = cfg.Bucket
	}
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, S3Options{
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    bucket,
		})
	case "local", "":
		dir := cfg.LocalDir
		if bucket != "" {
			dir = dir + "/" + bucket
		}
		return NewLocal(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
