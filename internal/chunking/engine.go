package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter is a semantic chunking strategy that returns ordered chunks for
// text given a target size.
type Splitter interface {
	Split(ctx context.Context, text string, targetSize int) ([]string, error)
}

// Engine chunks with the configured Splitter and falls back to SemanticChunk
// whenever the splitter is absent, fails, or returns nothing usable. The
// fallback is logged and counted, never surfaced to the caller.
type Engine struct {
	splitter     Splitter
	targetSize   int
	overlapRatio float64
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

type Option func(*Engine)

func WithSplitter(s Splitter) Option {
	return func(e *Engine) { e.splitter = s }
}

// WithSplitterTimeout bounds each call to the semantic splitter.
func WithSplitterTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(targetSize int, overlapRatio float64, opts ...Option) *Engine {
	e := &Engine{
		targetSize:   targetSize,
		overlapRatio: overlapRatio,
		logger:       slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds the engine described by cfg. The recursive splitter is
// only installed when cfg.SemanticSplitter is set.
func FromConfig(cfg config.IngestionConfig, m *metrics.Metrics) *Engine {
	opts := []Option{WithSplitterTimeout(cfg.StageTimeout), WithMetrics(m)}
	if cfg.SemanticSplitter {
		opts = append(opts, WithSplitter(NewRecursiveSplitter(cfg.OverlapRatio)))
	}
	return NewEngine(cfg.TargetChunkSize, cfg.OverlapRatio, opts...)
}

// Chunk returns the ordered chunks for text. It never fails; empty text
// yields no chunks.
func (e *Engine) Chunk(ctx context.Context, text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= e.targetSize {
		return []string{trimmed}
	}
	if e.splitter != nil {
		chunks, err := e.split(ctx, trimmed)
		if err == nil {
			return chunks
		}
		e.logger.Warn("semantic splitter failed, using deterministic chunker", "error", err)
		e.metrics.ChunkerFallback()
	}
	return SemanticChunk(trimmed, e.targetSize, e.overlapRatio)
}

func (e *Engine) split(ctx context.Context, text string) ([]string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	raw, err := e.splitter.Split(ctx, text, e.targetSize)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("splitter returned no chunks for %d runes of text", utf8.RuneCountInString(text))
	}
	return chunks, nil
}

// RecursiveSplitter splits on progressively finer separators (paragraph,
// line, sentence, word) using langchaingo's recursive character splitter.
type RecursiveSplitter struct {
	overlapRatio float64
}

func NewRecursiveSplitter(overlapRatio float64) *RecursiveSplitter {
	return &RecursiveSplitter{overlapRatio: overlapRatio}
}

func (r *RecursiveSplitter) Split(ctx context.Context, text string, targetSize int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if targetSize <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d", targetSize)
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(targetSize),
		textsplitter.WithChunkOverlap(int(float64(targetSize)*r.overlapRatio)),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}
	return chunks, nil
}
