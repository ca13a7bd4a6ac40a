package vectorsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTopK         = 3
	defaultCallTimeout  = 30 * time.Second
	compensationTimeout = time.Minute
)

// Item is one chunk handed to Upsert.
type Item struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
}

// Hit is one query result with decoded (or synthesized) metadata.
type Hit struct {
	ID       string
	Score    float64
	Text     string
	Metadata ChunkMetadata
}

type guardedIndex struct {
	Index
	breaker *resilience.CircuitBreaker
}

// Synchronizer mirrors upserts and deletes to every configured index. The
// index set is fixed at construction.
type Synchronizer struct {
	indexes     []*guardedIndex
	byName      map[string]*guardedIndex
	defaultName string
	topK        int
	callTimeout time.Duration
	retry       resilience.RetryConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Synchronizer)

func WithTopK(k int) Option {
	return func(s *Synchronizer) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithCallTimeout bounds every single index call, retries included
// separately.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.callTimeout = d }
}

func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Synchronizer) { s.retry = cfg }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) { s.metrics = m }
}

// NewSynchronizer builds a Synchronizer whose default index is def. Extra
// indexes receive the same writes. Index names must be unique.
func NewSynchronizer(def Index, extra []Index, opts ...Option) (*Synchronizer, error) {
	if def == nil {
		return nil, fmt.Errorf("default vector index is required")
	}
	s := &Synchronizer{
		byName:      make(map[string]*guardedIndex, len(extra)+1),
		defaultName: def.Name(),
		topK:        defaultTopK,
		callTimeout: defaultCallTimeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
		},
		logger: slog.Default().With("component", "vector-sync"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Retryable = func(err error) bool {
		return !errors.Is(err, ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	}

	for _, idx := range append([]Index{def}, extra...) {
		if idx == nil {
			return nil, fmt.Errorf("nil vector index configured")
		}
		name := idx.Name()
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("vector index %q configured twice", name)
		}
		gi := &guardedIndex{
			Index: idx,
			breaker: resilience.NewCircuitBreaker("index-"+name, resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				IsFailure: func(err error) bool {
					return err != nil && !errors.Is(err, ErrRecordNotFound)
				},
				OnStateChange: func(_ string, to resilience.State) {
					s.metrics.BreakerState("index-"+name, int(to))
				},
			}),
		}
		s.indexes = append(s.indexes, gi)
		s.byName[name] = gi
	}
	return s, nil
}

// Names returns the configured index names, default first.
func (s *Synchronizer) Names() []string {
	names := make([]string, len(s.indexes))
	for i, gi := range s.indexes {
		names[i] = gi.Name()
	}
	return names
}

func (s *Synchronizer) DefaultIndex() string {
	return s.defaultName
}

// Upsert writes items to every index in turn and returns their ids. If any
// index rejects the batch, ids written by this call are deleted again from
// every index already touched (including the failing one) and an error
// wrapping ErrSyncFailed is returned.
func (s *Synchronizer) Upsert(ctx context.Context, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	records := make([]Record, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("%w: item %d has no id", apperrors.ErrInvalidInput, i)
		}
		meta, err := EncodeMetadata(item.Metadata)
		if err != nil {
			return nil, err
		}
		records[i] = Record{ID: item.ID, Text: item.Text, Metadata: meta}
		ids[i] = item.ID
	}

	touched := make([]*guardedIndex, 0, len(s.indexes))
	for _, gi := range s.indexes {
		touched = append(touched, gi)
		err := s.call(ctx, gi, "upsert", func(ctx context.Context) error {
			return gi.UpsertRecords(ctx, records)
		})
		if err != nil {
			s.logger.Error("index upsert failed, compensating",
				"index", gi.Name(),
				"records", len(records),
				"error", err,
			)
			s.compensate(ctx, touched, ids)
			return nil, fmt.Errorf("%w: upsert to index %s: %w", apperrors.ErrSyncFailed, gi.Name(), err)
		}
	}
	s.logger.Debug("records upserted", "records", len(records), "indexes", len(s.indexes))
	return ids, nil
}

// compensate runs on a context detached from the caller's cancellation since
// it usually follows a timeout.
func (s *Synchronizer) compensate(ctx context.Context, touched []*guardedIndex, ids []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	for _, gi := range touched {
		err := gi.DeleteMany(ctx, ids)
		if errors.Is(err, ErrRecordNotFound) {
			err = nil
		}
		s.metrics.Compensation(err)
		if err != nil {
			s.logger.Error("compensating delete failed, records may be orphaned",
				"index", gi.Name(),
				"records", len(ids),
				"error", err,
			)
		}
	}
}

// Delete removes ids from every index. Ids an index does not hold count as
// deleted. All indexes are attempted; failures are joined.
func (s *Synchronizer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var errs []error
	for _, gi := range s.indexes {
		err := s.call(ctx, gi, "delete", func(ctx context.Context) error {
			if len(ids) == 1 {
				return gi.DeleteOne(ctx, ids[0])
			}
			return gi.DeleteMany(ctx, ids)
		})
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			errs = append(errs, fmt.Errorf("index %s: %w", gi.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: delete: %w", apperrors.ErrSyncFailed, errors.Join(errs...))
	}
	return nil
}

// Query searches the named index, or the default index when the name is
// unknown, and decodes each hit's metadata.
func (s *Synchronizer) Query(ctx context.Context, text, indexName string) ([]Hit, error) {
	gi, ok := s.byName[indexName]
	if !ok {
		if indexName != "" {
			s.logger.Debug("unknown index requested, using default", "index", indexName, "default", s.defaultName)
		}
		gi = s.byName[s.defaultName]
	}
	var matches []Match
	err := s.call(ctx, gi, "query", func(ctx context.Context) error {
		var err error
		matches, err = gi.SearchRecords(ctx, text, s.topK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query index %s: %w", apperrors.ErrIndexUnavailable, gi.Name(), err)
	}
	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, Hit{
			ID:       m.ID,
			Score:    m.Score,
			Text:     m.Text,
			Metadata: DecodeMetadata(m.ID, m.Metadata),
		})
	}
	return hits, nil
}

// PingIndex checks one index by name.
func (s *Synchronizer) PingIndex(ctx context.Context, name string) error {
	gi, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown vector index %q", name)
	}
	return gi.Ping(ctx)
}

// PingAll checks every index concurrently and returns the first failure.
func (s *Synchronizer) PingAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, gi := range s.indexes {
		g.Go(func() error {
			if err := gi.Ping(ctx); err != nil {
				return fmt.Errorf("index %s: %w", gi.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Synchronizer) call(ctx context.Context, gi *guardedIndex, op string, fn func(ctx context.Context) error) error {
	name := gi.Name() + "." + op
	start := time.Now()
	err := gi.breaker.Execute(func() error {
		return resilience.Retry(ctx, name, s.retry, func() error {
			return resilience.WithTimeout(ctx, s.callTimeout, name, fn)
		})
	})
	s.metrics.IndexOp(gi.Name(), op, err, time.Since(start).Seconds())
	return err
}
