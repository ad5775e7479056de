// Package app assembles the pipeline components from configuration. Both
// binaries build their object graph here so they share one wiring.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/chunking"
	"github.com/bull/book-rag-server/internal/config"
	"github.com/bull/book-rag-server/internal/embedding"
	"github.com/bull/book-rag-server/internal/extract"
	"github.com/bull/book-rag-server/internal/generation"
	"github.com/bull/book-rag-server/internal/indexer"
	"github.com/bull/book-rag-server/internal/rag"
	"github.com/bull/book-rag-server/internal/storage"
)

// VectorStore is a vector index that can report health and be closed.
type VectorStore interface {
	rag.VectorIndex
	Health(ctx context.Context) error
	Close() error
}

var (
	_ VectorStore = (*storage.QdrantStorage)(nil)
	_ VectorStore = (*storage.ChromemStorage)(nil)
)

// Embedder is an embedding provider that names its model.
type Embedder interface {
	rag.Embedder
	Model() string
}

// Completer is a chat completion provider that names its model.
type Completer interface {
	rag.Completer
	Model() string
}

// OpenVectorStore connects to the configured backend.
func OpenVectorStore(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (VectorStore, error) {
	switch cfg.Type {
	case config.StoreQdrant:
		s, err := storage.NewQdrantStorage(ctx, storage.QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreChromem:
		s, err := storage.NewChromemStorage(storage.ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown vector store %q", rag.ErrConfiguration, cfg.Type)
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config, logger *zap.Logger) (Embedder, error) {
	switch cfg.Embedding.Provider {
	case config.ProviderOpenAI:
		client, err := embedding.NewClient(embedding.ClientConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.Embedding.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return embedding.NewEmbedder(client, cfg.Embedding.Model, cfg.Embedding.BatchSize, logger), nil
	case config.ProviderCompatible:
		e, err := embedding.NewCompatibleEmbedder(embedding.CompatibleConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.Embedding.Model,
			BatchSize: cfg.Embedding.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", rag.ErrConfiguration, cfg.Embedding.Provider)
}

// NewCompleter builds the configured chat completion provider.
func NewCompleter(cfg *config.Config, logger *zap.Logger) (Completer, error) {
	switch cfg.Generation.Provider {
	case config.ProviderOpenAI:
		client, err := embedding.NewClient(embedding.ClientConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.Generation.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return generation.NewGenerator(client.Client(), cfg.Generation.Model, logger), nil
	case config.ProviderCompatible:
		g, err := generation.NewCompatibleGenerator(generation.CompatibleConfig{
			BaseURL: cfg.Generation.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
			Model:   cfg.Generation.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: unknown generation provider %q", rag.ErrConfiguration, cfg.Generation.Provider)
}

// NewQueryPipeline wires retrieval and generation. observer may be nil.
func NewQueryPipeline(cfg *config.Config, embedder rag.Embedder, completer rag.Completer, index rag.VectorIndex, logger *zap.Logger, observer rag.Observer) (*rag.Pipeline, error) {
	defaults, err := cfg.Retrieval.Defaults()
	if err != nil {
		return nil, err
	}

	retriever := rag.NewRetriever(embedder, index, cfg.VectorStore.Collection)
	generator := rag.NewAnswerGenerator(completer, rag.GenerationConfig{
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
	})
	return rag.NewPipeline(retriever, generator, defaults, logger, observer)
}

// NewIngestPipeline wires chunking, embedding and the index for one
// ingestion run. strategy overrides the configured one when non-empty.
func NewIngestPipeline(cfg *config.Config, strategy string, embedder rag.Embedder, index rag.VectorIndex, logger *zap.Logger) (*indexer.Pipeline, error) {
	if strategy == "" {
		strategy = cfg.Chunking.Strategy
	}
	s, err := chunking.ParseStrategy(strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	}
	chunker, err := chunking.NewChunker(s, cfg.Chunking.Window())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrConfiguration, err)
	}

	return indexer.NewPipeline(indexer.Config{
		Collection: cfg.VectorStore.Collection,
		Corpus:     cfg.Corpus.Name,
	}, chunker, embedder, index, logger), nil
}

// NewExtractor reads the configured page range of PDF corpora.
func NewExtractor(cfg config.CorpusConfig) *extract.Extractor {
	return extract.New(extract.NewPDFExtractor(extract.PageRange{
		Start: cfg.StartPage,
		End:   cfg.EndPage,
	}))
}
