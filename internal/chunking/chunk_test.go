package chunking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prose builds roughly n runes of sentence text with no blank lines.
func prose(word string, n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(word)
		if i%8 == 7 {
			b.WriteString(".")
		}
	}
	s := strings.TrimSpace(b.String())
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func TestLastFragment(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"fits", "short text", 50, "short text"},
		{"zero length", "anything", 0, ""},
		{"sentence boundary", "The first part. The second part ends here.", 30, "The second part ends here."},
		{"word boundary", "alpha beta gamma delta", 12, "gamma delta"},
		{"hard cut", "abcdefghijklmnop", 5, "lmnop"},
		{"multibyte", "héllo wörld ünïcode", 8, "ünïcode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LastFragment(tt.text, tt.maxLen)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), max(tt.maxLen, 0))
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestSemanticChunk_ShortTextIsSingleChunk(t *testing.T) {
	inputs := []string{
		"one line",
		"  padded with space \n",
		"para one\n\n\n\npara two",
	}
	for _, in := range inputs {
		chunks := SemanticChunk(in, 1000, 0.1)
		require.Len(t, chunks, 1)
		assert.Equal(t, strings.TrimSpace(in), chunks[0])
	}
}

func TestSemanticChunk_EmptyText(t *testing.T) {
	assert.Empty(t, SemanticChunk("", 1000, 0.1))
	assert.Empty(t, SemanticChunk(" \n\n \t", 1000, 0.1))
}

func TestSemanticChunk_TwoParagraphScenario(t *testing.T) {
	p1 := prose("ingest", 1300)
	p2 := prose("vector", 1200)
	text := p1 + "\n\n" + p2

	chunks := SemanticChunk(text, 1000, 0.1)
	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0])

	overlap, body, found := strings.Cut(chunks[1], "\n\n")
	require.True(t, found)
	assert.Equal(t, p2, body)
	assert.NotEmpty(t, overlap)
	assert.LessOrEqual(t, utf8.RuneCountInString(overlap), 100)
	assert.True(t, strings.HasSuffix(p1, overlap), "overlap must come from the end of the previous buffer")
}

func TestFromConfig_DefaultRunsParagraphChunker(t *testing.T) {
	p1 := prose("ingest", 1300)
	p2 := prose("vector", 1200)

	chunks := FromConfig(config.Default().Ingestion, nil).Chunk(context.Background(), p1+"\n\n"+p2)

	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0])
	assert.True(t, strings.HasSuffix(chunks[1], p2))
}

func TestFromConfig_SemanticSplitterOptIn(t *testing.T) {
	cfg := config.Default().Ingestion
	cfg.SemanticSplitter = true

	e := FromConfig(cfg, nil)

	assert.IsType(t, &RecursiveSplitter{}, e.splitter)
	assert.Nil(t, FromConfig(config.Default().Ingestion, nil).splitter)
}

func TestSemanticChunk_OverlapBoundProperty(t *testing.T) {
	paras := make([]string, 0, 12)
	for i := range 12 {
		paras = append(paras, prose(strings.Repeat("w", i%4+3), 150+i*40))
	}
	text := strings.Join(paras, "\n\n")
	const size = 600
	const ratio = 0.2

	chunks := SemanticChunk(text, size, ratio)
	require.Greater(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		overlap, _, found := strings.Cut(chunks[i], "\n\n")
		require.True(t, found)
		assert.LessOrEqual(t, utf8.RuneCountInString(overlap), int(size*ratio))
		assert.Contains(t, chunks[i-1], overlap)
	}
}

func TestSemanticChunk_FallsBackToSentences(t *testing.T) {
	text := prose("sentence", 2600)
	require.NotContains(t, text, "\n\n")

	chunks := SemanticChunk(text, 1000, 0.1)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000+100+2)
	}
}

type stubSplitter struct {
	chunks []string
	err    error
	calls  int
}

func (s *stubSplitter) Split(context.Context, string, int) ([]string, error) {
	s.calls++
	return s.chunks, s.err
}

func TestEngine_UsesSplitter(t *testing.T) {
	stub := &stubSplitter{chunks: []string{" a ", "", "b"}}
	e := NewEngine(10, 0.1, WithSplitter(stub))

	got := e.Chunk(context.Background(), strings.Repeat("x ", 20))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, stub.calls)
}

func TestEngine_FallsBackOnSplitterFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	text := prose("fallback", 1300) + "\n\n" + prose("again", 1200)

	for _, stub := range []*stubSplitter{
		{err: errors.New("semantic service down")},
		{chunks: []string{"  ", ""}},
	} {
		e := NewEngine(1000, 0.1, WithSplitter(stub), WithMetrics(m))
		got := e.Chunk(context.Background(), text)
		assert.Equal(t, SemanticChunk(text, 1000, 0.1), got)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunkerFallbacks))
}

func TestEngine_ShortTextSkipsSplitter(t *testing.T) {
	stub := &stubSplitter{err: errors.New("unused")}
	e := NewEngine(1000, 0.1, WithSplitter(stub))

	assert.Equal(t, []string{"tiny doc"}, e.Chunk(context.Background(), "  tiny doc\n"))
	assert.Nil(t, e.Chunk(context.Background(), "   "))
	assert.Zero(t, stub.calls)
}

func TestRecursiveSplitter(t *testing.T) {
	text := prose("recursive", 2500)
	chunks, err := NewRecursiveSplitter(0.1).Split(context.Background(), text, 500)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 500)
	}

	_, err = NewRecursiveSplitter(0.1).Split(context.Background(), text, 0)
	assert.Error(t, err)
}

func BenchmarkSemanticChunk(b *testing.B) {
	paras := make([]string, 0, 200)
	for i := range 200 {
		paras = append(paras, prose("bench", 300+i%7*50))
	}
	text := strings.Join(paras, "\n\n")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SemanticChunk(text, 1000, 0.1)
	}
}
