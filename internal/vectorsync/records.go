package vectorsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/resilience"
)

const (
	textField     = "chunk_text"
	metadataField = "metadata"
)

// recordsConn is the part of *pinecone.IndexConnection RecordsIndex uses.
type recordsConn interface {
	UpsertRecords(ctx context.Context, records []*pinecone.IntegratedRecord) error
	SearchRecords(ctx context.Context, in *pinecone.SearchRecordsRequest) (*pinecone.SearchRecordsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
}

// RecordsIndex is a hosted Pinecone index with integrated embedding: text
// goes in as records and is embedded server-side.
type RecordsIndex struct {
	name string
	conn recordsConn
}

// NewRecordsIndex connects to the index served at host. An empty namespace
// selects the index's default namespace.
func NewRecordsIndex(name, host, apiKey, namespace string) (*RecordsIndex, error) {
	if host == "" {
		return nil, fmt.Errorf("records index %s: url is required", name)
	}
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("records index %s: creating client: %w", name, err)
	}
	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("records index %s: connecting to %s: %w", name, host, err)
	}
	return newRecordsIndex(name, conn), nil
}

func newRecordsIndex(name string, conn recordsConn) *RecordsIndex {
	return &RecordsIndex{name: name, conn: conn}
}

func (r *RecordsIndex) Name() string { return r.name }

func (r *RecordsIndex) UpsertRecords(ctx context.Context, records []Record) error {
	batch := make([]*pinecone.IntegratedRecord, len(records))
	for i, rec := range records {
		batch[i] = &pinecone.IntegratedRecord{
			"_id":         rec.ID,
			textField:     rec.Text,
			metadataField: rec.Metadata,
		}
	}
	if err := r.conn.UpsertRecords(ctx, batch); err != nil {
		return r.classify("upsert", err)
	}
	return nil
}

func (r *RecordsIndex) DeleteOne(ctx context.Context, id string) error {
	if err := r.conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return r.classify("delete", err)
	}
	return nil
}

// DeleteMany treats a not-found answer as success: some of the ids may
// still have been removed.
func (r *RecordsIndex) DeleteMany(ctx context.Context, ids []string) error {
	err := r.conn.DeleteVectorsById(ctx, ids)
	if err == nil {
		return nil
	}
	err = r.classify("delete", err)
	if len(ids) > 1 && errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	return err
}

func (r *RecordsIndex) SearchRecords(ctx context.Context, query string, topK int) ([]Match, error) {
	inputs := map[string]interface{}{"text": query}
	fields := []string{textField, metadataField}
	resp, err := r.conn.SearchRecords(ctx, &pinecone.SearchRecordsRequest{
		Query: pinecone.SearchRecordsQuery{
			TopK:   int32(topK),
			Inputs: &inputs,
		},
		Fields: &fields,
	})
	if err != nil {
		return nil, r.classify("search", err)
	}
	matches := make([]Match, 0, len(resp.Result.Hits))
	for _, h := range resp.Result.Hits {
		matches = append(matches, Match{
			ID:       h.Id,
			Score:    float64(h.Score),
			Text:     fieldString(h.Fields[textField]),
			Metadata: fieldString(h.Fields[metadataField]),
		})
	}
	return matches, nil
}

func (r *RecordsIndex) Ping(ctx context.Context) error {
	if _, err := r.conn.DescribeIndexStats(ctx); err != nil {
		return r.classify("describe", err)
	}
	return nil
}

// classify maps SDK failures onto the synchronizer's error contract: not
// found becomes ErrRecordNotFound, throttling and server faults stay
// retryable, and every other client error is permanent.
func (r *RecordsIndex) classify(op string, err error) error {
	wrapped := fmt.Errorf("%s.%s: %w", r.name, op, err)
	switch code := statusOf(err); {
	case code == 404:
		return fmt.Errorf("%w: %w", ErrRecordNotFound, wrapped)
	case code == 408, code == 429:
		return wrapped
	case code >= 400 && code < 500:
		return resilience.Permanent(wrapped)
	}
	return wrapped
}

// statusOf returns the HTTP-equivalent status behind a REST or gRPC error
// from the SDK.
func statusOf(err error) int {
	var pe *pinecone.PineconeError
	if errors.As(err, &pe) {
		return pe.Code
	}
	switch status.Code(err) {
	case codes.NotFound:
		return 404
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.Unauthenticated:
		return 401
	case codes.PermissionDenied:
		return 403
	case codes.AlreadyExists, codes.Aborted:
		return 409
	case codes.DeadlineExceeded:
		return 408
	case codes.ResourceExhausted:
		return 429
	case codes.Unavailable, codes.Internal, codes.Unknown, codes.DataLoss:
		return 503
	}
	return 0
}

// fieldString returns a string field as-is and re-encodes any other JSON
// value, so legacy non-string metadata still reaches the decoder.
func fieldString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

var (
	_ Index       = (*RecordsIndex)(nil)
	_ recordsConn = (*pinecone.IndexConnection)(nil)
)
