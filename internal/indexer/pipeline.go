// Package indexer builds the vector index for a book in one offline run.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/chunking"
	"github.com/bull/book-rag-server/internal/rag"
	"github.com/bull/book-rag-server/internal/storage"
)

// ErrNoFragments is returned when the text yields nothing to index. The
// existing collection is left untouched.
var ErrNoFragments = errors.New("no fragments produced from corpus text")

// IngestResult contains statistics about an ingestion run.
type IngestResult struct {
	Collection   string
	Strategy     chunking.Strategy
	Fragments    int
	DroppedWords int
	Dimension    int
	Duration     time.Duration
}

// Config names the collection and the corpus label stored as the default
// "source" metadata.
type Config struct {
	Collection string
	Corpus     string
}

// Pipeline orchestrates ingestion: chunk, embed, recreate the collection, upsert.
type Pipeline struct {
	cfg      Config
	chunker  *chunking.Chunker
	embedder rag.Embedder
	index    rag.VectorIndex
	logger   *zap.Logger
}

// NewPipeline creates a new ingestion pipeline with the given components.
func NewPipeline(cfg Config, chunker *chunking.Chunker, embedder rag.Embedder, index rag.VectorIndex, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:      cfg,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Ingest replaces the collection's contents with the fragments of raw.
//
// Every fragment is embedded before the collection is touched, so an
// embedding failure keeps the previous index. Once embedding succeeds the
// collection is dropped and recreated, so no fragment of an earlier run
// survives.
func (p *Pipeline) Ingest(ctx context.Context, raw string) (*IngestResult, error) {
	start := time.Now()

	chunked := p.chunker.ChunkDocument(raw)
	result := &IngestResult{
		Collection:   p.cfg.Collection,
		Strategy:     p.chunker.Strategy(),
		Fragments:    len(chunked.Chunks),
		DroppedWords: chunked.DroppedWords,
	}
	p.logger.Info("chunked corpus",
		zap.String("corpus", p.cfg.Corpus),
		zap.String("strategy", string(result.Strategy)),
		zap.Int("fragments", result.Fragments),
	)
	if chunked.DroppedWords > 0 {
		p.logger.Warn("trailing words not covered by any window",
			zap.Int("dropped_words", chunked.DroppedWords),
		)
	}
	if len(chunked.Chunks) == 0 {
		return nil, ErrNoFragments
	}

	records, err := p.embed(ctx, chunked.Chunks)
	if err != nil {
		return nil, err
	}
	result.Dimension = len(records[0].Vector)

	if err := p.recreate(ctx, result.Dimension); err != nil {
		return nil, err
	}
	if err := p.index.Upsert(ctx, p.cfg.Collection, records); err != nil {
		return nil, fmt.Errorf("%w: upsert fragments: %w", rag.ErrIndex, err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("ingestion complete",
		zap.String("collection", p.cfg.Collection),
		zap.Int("fragments", result.Fragments),
		zap.Int("dimension", result.Dimension),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// embed returns one record per chunk. Any missing or empty vector fails
// the whole batch, since a skipped fragment would misalign ids and vectors.
func (p *Pipeline) embed(ctx context.Context, chunks []chunking.Chunk) ([]storage.Record, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed fragments: %w", rag.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d fragments", rag.ErrEmbedding, len(vectors), len(chunks))
	}

	dimension := len(vectors[0])
	records := make([]storage.Record, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("%w: fragment %d has an empty vector", rag.ErrEmbedding, i)
		}
		if len(vectors[i]) != dimension {
			return nil, fmt.Errorf("%w: fragment %d has %d dimensions, expected %d",
				rag.ErrEmbedding, i, len(vectors[i]), dimension)
		}

		metadata := c.Metadata()
		metadata["source"] = p.cfg.Corpus
		records[i] = storage.Record{
			ID:       uuid.New().String(),
			Document: c.Text,
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}
	return records, nil
}

func (p *Pipeline) recreate(ctx context.Context, dimension int) error {
	err := p.index.DropCollection(ctx, p.cfg.Collection)
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound):
		p.logger.Debug("no previous collection", zap.String("collection", p.cfg.Collection))
	case err != nil:
		return fmt.Errorf("%w: drop collection: %w", rag.ErrIndex, err)
	}

	if err := p.index.CreateCollection(ctx, p.cfg.Collection, dimension); err != nil {
		return fmt.Errorf("%w: create collection: %w", rag.ErrIndex, err)
	}
	return nil
}
