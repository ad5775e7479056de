package rag

import (
	"context"

	"github.com/bull/book-rag-server/internal/storage"
)

// Embedder turns text into vectors. EmbedDocuments returns one vector per
// input, in order.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CompletionRequest is a single system + user prompt exchange.
type CompletionRequest struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completer produces a chat completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// VectorIndex stores fragments and answers nearest-neighbour queries by
// cosine distance. DropCollection and Count return
// storage.ErrCollectionNotFound for an unknown collection.
type VectorIndex interface {
	CreateCollection(ctx context.Context, name string, dimension int) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []storage.Record) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]storage.Match, error)
	Count(ctx context.Context, name string) (int, error)
}
