package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

// QdrantConfig holds connection settings for a Qdrant server (gRPC port).
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
type QdrantStorage struct {
	client *qdrant.Client
	logger *zap.Logger

	// Vector size per collection, cached after create or first lookup.
	dims sync.Map
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, cfg QdrantConfig, logger *zap.Logger) (*QdrantStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStorage{client: client, logger: logger}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	logger.Info("connected to qdrant", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return s, nil
}

// retryPolicy is shared by the health check and upserts.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, retryPolicy(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// CreateCollection creates name with a single unnamed cosine vector of the given size.
func (s *QdrantStorage) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension < 1 {
		return fmt.Errorf("%w: collection %s needs a positive dimension, got %d", ErrDimensionMismatch, name, dimension)
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	s.dims.Store(name, dimension)
	s.logger.Info("created collection", zap.String("collection", name), zap.Int("dimension", dimension))
	return nil
}

// DropCollection deletes name and every point in it.
// Returns ErrCollectionNotFound if it does not exist.
func (s *QdrantStorage) DropCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}

	s.dims.Delete(name)
	s.logger.Info("dropped collection", zap.String("collection", name))
	return nil
}

// Upsert writes records in batches of 100, retrying each batch with backoff.
func (s *QdrantStorage) Upsert(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dimension, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	for i, r := range records {
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(r.Vector), dimension)
		}
	}

	for i := 0; i < len(records); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(records))

		batch := records[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, r := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(r.ID),
				Vectors: qdrant.NewVectors(r.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadDocument: r.Document,
					payloadMetadata: toAnyMap(r.Metadata),
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, name, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	s.logger.Debug("upserted records", zap.String("collection", name), zap.Int("count", len(records)))
	return nil
}

func (s *QdrantStorage) upsertWithRetry(ctx context.Context, name string, points []*qdrant.PointStruct) error {
	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}, retryPolicy(ctx))
}

// Query returns the k nearest records by cosine distance, closest first.
func (s *QdrantStorage) Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	dimension, err := s.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), dimension)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", name, err)
	}

	matches := make([]Match, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, Match{
			ID:       result.Id.GetUuid(),
			Document: payload[payloadDocument].GetStringValue(),
			Distance: distanceFromSimilarity(float64(result.Score)),
			Metadata: fromStructValue(payload[payloadMetadata]),
		})
	}
	return matches, nil
}

// Count returns the exact number of points in name.
func (s *QdrantStorage) Count(ctx context.Context, name string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", name, err)
	}
	return int(n), nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// dimension returns the vector size of name, asking Qdrant on a cache miss.
func (s *QdrantStorage) dimension(ctx context.Context, name string) (int, error) {
	if v, ok := s.dims.Load(name); ok {
		return v.(int), nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	size := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	if size == 0 {
		return 0, fmt.Errorf("collection %s has no unnamed vector", name)
	}

	s.dims.Store(name, size)
	return size, nil
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fromStructValue(v *qdrant.Value) map[string]string {
	fields := v.GetStructValue().GetFields()
	out := make(map[string]string, len(fields))
	for k, f := range fields {
		out[k] = f.GetStringValue()
	}
	return out
}
