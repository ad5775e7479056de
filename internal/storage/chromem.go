package storage

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded index. An empty Path keeps the
// index in memory only.
type ChromemConfig struct {
	Path     string
	Compress bool
}

// ChromemStorage is an embedded, optionally persistent vector index for
// running without a Qdrant server.
type ChromemStorage struct {
	db     *chromem.DB
	logger *zap.Logger
	dims   sync.Map
}

var errEmbeddingsRequired = errors.New("chromem index expects precomputed embeddings")

// NewChromemStorage opens (or creates) the index at cfg.Path.
func NewChromemStorage(cfg ChromemConfig, logger *zap.Logger) (*ChromemStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.Path == "" {
		logger.Info("using in-memory chromem index")
		return &ChromemStorage{db: chromem.NewDB(), logger: logger}, nil
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db at %s: %w", cfg.Path, err)
	}

	logger.Info("opened chromem index", zap.String("path", cfg.Path), zap.Bool("compress", cfg.Compress))
	return &ChromemStorage{db: db, logger: logger}, nil
}

// Vectors are always supplied by the caller; chromem must never embed on its own.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingsRequired
}

// Health always succeeds for the embedded index.
func (s *ChromemStorage) Health(context.Context) error {
	return nil
}

// CreateCollection creates name. chromem always ranks by cosine similarity.
func (s *ChromemStorage) CreateCollection(_ context.Context, name string, dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("%w: collection %s needs a positive dimension, got %d", ErrDimensionMismatch, name, dimension)
	}
	if _, err := s.db.CreateCollection(name, nil, noEmbedding); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	s.dims.Store(name, dimension)
	s.logger.Info("created collection", zap.String("collection", name), zap.Int("dimension", dimension))
	return nil
}

// DropCollection deletes name. Returns ErrCollectionNotFound if it does not exist.
func (s *ChromemStorage) DropCollection(_ context.Context, name string) error {
	if s.db.GetCollection(name, noEmbedding) == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err := s.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	s.dims.Delete(name)
	s.logger.Info("dropped collection", zap.String("collection", name))
	return nil
}

// Upsert adds records to name, replacing any with the same ID.
func (s *ChromemStorage) Upsert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	dimension, known := s.knownDimension(name)
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %d", ErrEmptyVector, i)
		}
		if known && len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), dimension)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Content:   r.Document,
			Metadata:  r.Metadata,
			Embedding: r.Vector,
		}
	}

	for i := 0; i < len(docs); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(docs))
		if err := collection.AddDocuments(ctx, docs[i:end], runtime.NumCPU()); err != nil {
			return fmt.Errorf("failed to add batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Debug("upserted records", zap.String("collection", name), zap.Int("count", len(records)))
	return nil
}

// Query returns up to k nearest records, closest first. chromem rejects a
// k above the document count, so k is capped.
func (s *ChromemStorage) Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}

	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if dimension, ok := s.knownDimension(name); ok && len(vector) != dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dimension)
	}

	count := collection.Count()
	if count == 0 || k < 1 {
		return []Match{}, nil
	}
	k = min(k, count)

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Document: r.Content,
			Distance: distanceFromSimilarity(float64(r.Similarity)),
			Metadata: r.Metadata,
		}
	}
	return matches, nil
}

// Count returns the number of records in name.
func (s *ChromemStorage) Count(_ context.Context, name string) (int, error) {
	collection := s.db.GetCollection(name, noEmbedding)
	if collection == nil {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return collection.Count(), nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStorage) Close() error {
	return nil
}

func (s *ChromemStorage) knownDimension(name string) (int, bool) {
	v, ok := s.dims.Load(name)
	if !ok {
		return 0, false
	}
	return v.(int), true
}
