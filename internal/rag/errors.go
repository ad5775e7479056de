package rag

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Each is fatal to the invocation that
// produced it. Callers test with errors.Is; the wrapped cause stays
// reachable too.
var (
	ErrEmbedding     = errors.New("embedding failed")
	ErrGeneration    = errors.New("generation failed")
	ErrIndex         = errors.New("vector index failed")
	ErrConfiguration = errors.New("invalid configuration")
)

func wrap(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

// ErrorKind returns a short label for err's kind, for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmbedding):
		return "embedding"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrIndex):
		return "index"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "unknown"
}
