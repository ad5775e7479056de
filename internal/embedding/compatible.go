package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// placeholderToken satisfies the client for local servers that ignore auth.
const placeholderToken = "unused"

// CompatibleConfig points at any server speaking the OpenAI embeddings API
// (vLLM, Ollama, LocalAI, text-embeddings-inference).
type CompatibleConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	BatchSize int
}

// CompatibleEmbedder embeds through langchaingo's OpenAI-compatible client.
type CompatibleEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

// NewCompatibleEmbedder creates an embedder for cfg.BaseURL.
func NewCompatibleEmbedder(cfg CompatibleConfig) (*CompatibleEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("compatible embedding provider needs a base url")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	token := cfg.APIKey
	if token == "" {
		token = placeholderToken
	}

	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithToken(token),
		lcopenai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create compatible client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create compatible embedder: %w", err)
	}

	return &CompatibleEmbedder{embedder: embedder, model: cfg.Model}, nil
}

// Model returns the embedding model name.
func (e *CompatibleEmbedder) Model() string {
	return e.model
}

// EmbedDocuments returns one vector per text, in input order.
func (e *CompatibleEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkInputs(texts); err != nil {
		return nil, err
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// EmbedQuery embeds one question.
func (e *CompatibleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	return vector, nil
}
