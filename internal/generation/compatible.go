package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/bull/book-rag-server/internal/rag"
)

const placeholderToken = "unused"

// CompatibleConfig points at any server speaking the OpenAI chat API.
type CompatibleConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// CompatibleGenerator completes through langchaingo's OpenAI-compatible client.
type CompatibleGenerator struct {
	llm   llms.Model
	model string
}

// NewCompatibleGenerator creates a generator for cfg.BaseURL.
func NewCompatibleGenerator(cfg CompatibleConfig) (*CompatibleGenerator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("compatible generation provider needs a base url")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	token := cfg.APIKey
	if token == "" {
		token = placeholderToken
	}

	llm, err := lcopenai.New(
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithToken(token),
		lcopenai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create compatible client: %w", err)
	}
	return &CompatibleGenerator{llm: llm, model: cfg.Model}, nil
}

// Model returns the chat model name.
func (g *CompatibleGenerator) Model() string {
	return g.model
}

// Complete sends one system + user exchange and returns the reply text.
func (g *CompatibleGenerator) Complete(ctx context.Context, req rag.CompletionRequest) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, req.System),
		llms.TextParts(schema.ChatMessageTypeHuman, req.User),
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := g.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Content, nil
}
