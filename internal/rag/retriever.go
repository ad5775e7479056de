package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Result is one retrieved fragment.
type Result struct {
	Document string            `json:"document"`
	Distance float64           `json:"distance"`
	Metadata map[string]string `json:"metadata"`
}

// Retriever embeds a question and returns the indexed fragments within a
// distance threshold of it.
type Retriever struct {
	embedder   Embedder
	index      VectorIndex
	collection string
}

// NewRetriever returns a retriever over one collection of index.
func NewRetriever(embedder Embedder, index VectorIndex, collection string) *Retriever {
	return &Retriever{embedder: embedder, index: index, collection: collection}
}

// Retrieve returns up to n fragments with distance <= threshold, in the
// index's own order (ascending distance). An empty index or no match
// within the threshold yields an empty slice and a nil error.
func (r *Retriever) Retrieve(ctx context.Context, query string, n int, threshold float64) ([]Result, error) {
	if err := validateRetrieval(n, threshold); err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return nil, wrap(ErrEmbedding, errors.New("empty query"))
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrap(ErrEmbedding, err)
	}
	if len(vector) == 0 {
		return nil, wrap(ErrEmbedding, errors.New("empty query vector"))
	}

	matches, err := r.index.Query(ctx, r.collection, vector, n)
	if err != nil {
		return nil, wrap(ErrIndex, err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Distance > threshold {
			continue
		}
		results = append(results, Result{
			Document: m.Document,
			Distance: m.Distance,
			Metadata: m.Metadata,
		})
	}
	return results, nil
}

func validateRetrieval(n int, threshold float64) error {
	if n < 1 {
		return wrap(ErrConfiguration, fmt.Errorf("n_results must be at least 1, got %d", n))
	}
	if math.IsNaN(threshold) || threshold < 0 {
		return wrap(ErrConfiguration, fmt.Errorf("distance_threshold must be a non-negative number, got %v", threshold))
	}
	return nil
}
