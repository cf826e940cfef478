// Package retrieval turns a question into grounding chunks via an embedding
// service and a similarity-search service.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultThreshold = 0.5
	SQLContextCount  = 3
	RAGContextCount  = 5
)

// Chunk is a retrieved document fragment ranked by similarity.
type Chunk struct {
	DocID      string  `json:"doc_id"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, threshold float64, count int) ([]Chunk, error)
}

type Retriever struct {
	embedder  Embedder
	searcher  Searcher
	threshold float64
}

func NewRetriever(embedder Embedder, searcher Searcher, threshold float64) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{embedder: embedder, searcher: searcher, threshold: threshold}, nil
}

// Retrieve embeds question once and returns up to count chunks above the
// similarity threshold. No match is an empty slice, not an error.
func (r *Retriever) Retrieve(ctx context.Context, question string, count int) ([]Chunk, error) {
	if count <= 0 {
		count = SQLContextCount
	}
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vectors))
	}
	chunks, err := r.searcher.Search(ctx, vectors[0], r.threshold, count)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	if chunks == nil {
		chunks = []Chunk{}
	}
	return chunks, nil
}
