// Package tracing records timed span trees through Go contexts. A pipeline
// run opens a root span keyed by the document id, each stage adds a child,
// and the finished tree is written to slog in one pass.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed operation. Err is set by End when the operation failed.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Err       error
	Children  []*Span
	attrs     map[string]any
	mu        sync.Mutex
}

// Start opens a root span and stores it in the returned context.
func Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChild opens a span under the one in ctx. Without a parent the child
// is a detached root with no trace id.
func StartChild(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// End records the duration and the outcome.
func (s *Span) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Duration = time.Since(s.StartTime)
	s.Err = err
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// FromContext returns the current span in ctx, or nil.
func FromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to log at debug level, depth first, one record
// per span. Failed spans are logged at warn level.
func (s *Span) Log(ctx context.Context, log *slog.Logger) {
	s.log(ctx, log, 0)
}

func (s *Span) log(ctx context.Context, log *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, s.attrs[k])
	}
	level := slog.LevelDebug
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err)
		level = slog.LevelWarn
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	log.Log(ctx, level, "span", attrs...)
	for _, child := range children {
		child.log(ctx, log, depth+1)
	}
}
