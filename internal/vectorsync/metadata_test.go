package vectorsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_RoundTrip(t *testing.T) {
	in := ChunkMetadata{
		DocumentID:   "doc-1",
		ChunkIndex:   4,
		DocumentName: "handbook.pdf",
		MediaType:    "application/pdf",
		UserID:       "user-7",
		CategoryID:   "cat-2",
	}
	raw, err := EncodeMetadata(in)
	require.NoError(t, err)
	assert.Contains(t, raw, `"v":1`)

	out := DecodeMetadata(ChunkID("doc-1", 4), raw)

	want := in
	want.Version = MetadataVersion
	want.Kind = KindStructured
	assert.Equal(t, want, out)
}

func TestDecodeMetadata_IgnoresUnknownFields(t *testing.T) {
	out := DecodeMetadata("x", `{"v":2,"documentId":"d","chunkIndex":1,"future":"field"}`)
	assert.Equal(t, KindStructured, out.Kind)
	assert.Equal(t, "d", out.DocumentID)
	assert.Equal(t, 2, out.Version)
}

func TestDecodeMetadata_LegacyFallback(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		raw       string
		wantDoc   string
		wantIndex int
	}{
		{"plain string", "doc-9#3", "quarterly report", "doc-9", 3},
		{"broken json", "doc-9#0", `{"documentId":`, "doc-9", 0},
		{"json without document", "doc-9#1", `{"source":"legacy"}`, "doc-9", 1},
		{"empty", "doc-9#2", "", "doc-9", 2},
		{"foreign id", "vec-abc", "whatever", "", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DecodeMetadata(tt.id, tt.raw)
			assert.Equal(t, KindLegacy, out.Kind)
			assert.Equal(t, tt.raw, out.Raw)
			assert.Equal(t, tt.wantDoc, out.DocumentID)
			assert.Equal(t, tt.wantIndex, out.ChunkIndex)
		})
	}
}

func TestSplitChunkID(t *testing.T) {
	doc, idx := SplitChunkID(ChunkID("a#b", 12))
	assert.Equal(t, "a#b", doc)
	assert.Equal(t, 12, idx)

	doc, idx = SplitChunkID("#5")
	assert.Equal(t, "#5", doc)
	assert.Equal(t, -1, idx)

	_, idx = SplitChunkID("doc#-1")
	assert.Equal(t, -1, idx)
}
