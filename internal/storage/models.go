package storage

import "math"

// Record is one fragment as written to a vector index.
type Record struct {
	ID       string // UUID
	Document string
	Vector   []float32
	Metadata map[string]string
}

// Match is one nearest-neighbour hit, ordered by ascending Distance.
type Match struct {
	ID       string
	Document string
	Distance float64 // cosine distance, 1 - similarity
	Metadata map[string]string
}

// Payload keys shared by the index backends.
const (
	payloadDocument = "document"
	payloadMetadata = "metadata"
)

// upsertBatchSize bounds the number of points sent per write.
const upsertBatchSize = 100

// distanceFromSimilarity converts a cosine similarity score to a distance.
// Float rounding can push an identical vector's similarity slightly above
// 1; the distance is clamped at zero.
func distanceFromSimilarity(similarity float64) float64 {
	return math.Max(0, 1-similarity)
}

