package document

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 3

// Embedder turns text into a fixed-dimension vector. The GenAI client
// implements it.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// batchEmbedder embeds many texts in one request. BuildIndex prefers it when
// the embedder supports it.
type batchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)
}

// Opts holds configuration options for index construction.
type Opts struct {
	ChunkWordBudget int
}

// Option defines a configuration option for index construction.
type Option func(*Opts)

// WithChunkWordBudget sets the maximum words per chunk.
func WithChunkWordBudget(budget int) Option {
	return func(o *Opts) { o.ChunkWordBudget = budget }
}

// Index holds the document chunks and their embedding vectors in parallel
// slices. len(chunks) == len(embeddings) always holds.
type Index struct {
	chunks     []string
	embeddings [][]float64
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// BuildIndex chunks text and embeds every chunk. It runs to completion before
// returning; the service must not accept traffic until the index is ready.
// An empty document yields an empty index, which degrades retrieval to an
// empty grounding context rather than failing.
func BuildIndex(ctx context.Context, embedder Embedder, text string, opts ...Option) (*Index, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	chunks := ChunkWords(text, cfg.ChunkWordBudget)
	if len(chunks) == 0 {
		slog.Warn("BuildIndex: reference document is empty, responses will be ungrounded")
		return &Index{}, nil
	}
	slog.Debug("BuildIndex: embedding document chunks", "chunks", len(chunks))
	if batcher, ok := embedder.(batchEmbedder); ok {
		embeddings, err := batcher.EmbedTexts(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document chunks: %w", err)
		}
		slog.Info("BuildIndex: document index ready", "chunks", len(chunks))
		return &Index{chunks: chunks, embeddings: embeddings}, nil
	}
	embeddings := make([][]float64, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := embedder.EmbedText(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		embeddings = append(embeddings, vec)
	}
	slog.Info("BuildIndex: document index ready", "chunks", len(chunks))
	return &Index{chunks: chunks, embeddings: embeddings}, nil
}

// Retriever ranks index chunks by cosine similarity to a query and returns
// the top-k concatenation as grounding context.
type Retriever struct {
	index    *Index
	embedder Embedder
	topK     int
}

// NewRetriever creates a retriever over the given index.
func NewRetriever(index *Index, embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{index: index, embedder: embedder, topK: topK}
}

// Retrieve embeds the query and returns the top-k most similar chunks joined
// by blank lines, in descending-similarity order. An empty index returns an
// empty string without error.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	if r.index == nil || r.index.Len() == 0 {
		slog.Debug("Retriever.Retrieve: index is empty, returning empty context")
		return "", nil
	}
	queryVec, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	sims := make([]float64, r.index.Len())
	for i, vec := range r.index.embeddings {
		sims[i] = cosineSimilarity(queryVec, vec)
	}

	// Stable sort keeps original chunk order among equal similarities, so
	// ties resolve to the lower index.
	order := make([]int, len(sims))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims[order[a]] > sims[order[b]]
	})

	k := r.topK
	if k > len(order) {
		k = len(order)
	}
	selected := make([]string, 0, k)
	for _, idx := range order[:k] {
		selected = append(selected, r.index.chunks[idx])
	}
	slog.Debug("Retriever.Retrieve: context assembled", "chunks", k, "top_similarity", sims[order[0]])
	return strings.Join(selected, "\n\n"), nil
}

// cosineSimilarity computes dot(a,b)/(|a|*|b|). It returns 0 for zero vectors
// or mismatched dimensions, where the measure is undefined.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
