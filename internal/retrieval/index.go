// internal/retrieval/index.go
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/user/mastopilot/internal/types"
	"github.com/user/mastopilot/pkg/llm"
)

// Index is an in-memory embedding index over document chunks. It implements
// types.Retriever. Callers treat it as best-effort: an empty or failed
// query degrades to no supporting passages, never to an aborted pipeline.
type Index struct {
	embedder llm.Embedder
	chunker  *Chunker

	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	chunk Chunk
	vec   []float32
}

// NewIndex creates an empty index.
func NewIndex(embedder llm.Embedder, chunker *Chunker) *Index {
	return &Index{embedder: embedder, chunker: chunker}
}

// Rebuild chunks and embeds the given documents, replacing the index
// contents atomically on success. On failure the previous contents remain.
func (ix *Index) Rebuild(ctx context.Context, docs []types.Document) error {
	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, ix.chunker.Split(doc.ID, doc.Content)...)
	}
	if len(chunks) == 0 {
		ix.mu.Lock()
		ix.entries = nil
		ix.mu.Unlock()
		return nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vecs, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	entries := make([]entry, len(chunks))
	for i := range chunks {
		entries[i] = entry{chunk: chunks[i], vec: vecs[i]}
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
	slog.Info("retrieval index rebuilt", "documents", len(docs), "chunks", len(chunks))
	return nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Query embeds the text and returns the k most similar passages by cosine
// similarity, best first.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]types.Passage, error) {
	ix.mu.RLock()
	entries := ix.entries
	ix.mu.RUnlock()

	if len(entries) == 0 || k <= 0 {
		return nil, nil
	}

	vecs, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := vecs[0]

	passages := make([]types.Passage, 0, len(entries))
	for _, e := range entries {
		passages = append(passages, types.Passage{
			Source: e.chunk.Source,
			Text:   e.chunk.Text,
			Score:  cosine(query, e.vec),
		})
	}
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// cosine returns the cosine similarity of two vectors, 0 when either is
// zero-length or all zeros.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
