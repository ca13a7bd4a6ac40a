package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/chunking"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/fingerprint"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/vectorsync"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog.",
	"medium": strings.Repeat(`Ingestion pipelines turn uploaded files into searchable knowledge.
Text is extracted, split into overlapping chunks and replicated to every
configured vector index. Each chunk keeps a stable identifier so a later
reprocess can remove exactly the records it wrote.

`, 4),
	"long": strings.Repeat(`Document stores keep the original bytes next to the extracted text.
Chunk boundaries follow paragraphs where possible and fall back to sentences
when a paragraph is larger than the target size. Overlap carries the tail of
the previous chunk forward so retrieval keeps local context. A failed
synchronization leaves no chunk rows behind and can simply be retried.

`, 60),
}

func BenchmarkEngineChunk(b *testing.B) {
	engines := map[string]*chunking.Engine{
		"fallback":  chunking.NewEngine(1000, 0.1),
		"recursive": chunking.NewEngine(1000, 0.1, chunking.WithSplitter(chunking.NewRecursiveSplitter(0.1))),
	}
	for ename, engine := range engines {
		for tname, text := range sampleTexts {
			b.Run(ename+"/"+tname, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				ctx := context.Background()
				for i := 0; i < b.N; i++ {
					_ = engine.Chunk(ctx, text)
				}
			})
		}
	}
}

func BenchmarkFingerprint(b *testing.B) {
	data := []byte(sampleTexts["long"])
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		_ = fingerprint.Of(data)
	}
}

func BenchmarkSynchronizerUpsert(b *testing.B) {
	for _, replicas := range []int{1, 3} {
		b.Run(fmt.Sprintf("indexes=%d", replicas), func(b *testing.B) {
			extra := make([]vectorsync.Index, 0, replicas-1)
			for i := 1; i < replicas; i++ {
				extra = append(extra, vectorsync.NewMemoryIndex(fmt.Sprintf("replica-%d", i)))
			}
			sync, err := vectorsync.NewSynchronizer(vectorsync.NewMemoryIndex("default"), extra)
			if err != nil {
				b.Fatal(err)
			}
			chunks := chunking.NewEngine(1000, 0.1).Chunk(context.Background(), sampleTexts["long"])
			items := make([]vectorsync.Item, len(chunks))
			for i, c := range chunks {
				items[i] = vectorsync.Item{
					ID:       vectorsync.ChunkID("bench-doc", i),
					Text:     c,
					Metadata: vectorsync.ChunkMetadata{DocumentID: "bench-doc", ChunkIndex: i},
				}
			}

			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := sync.Upsert(ctx, items); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
