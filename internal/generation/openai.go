// Package generation provides chat completion backends for answering
// questions from retrieved context.
package generation

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/rag"
)

const (
	// DefaultModel is the chat model used for answers.
	DefaultModel = "gpt-4o-mini"

	// DefaultMaxPromptTokens caps the user prompt before truncation.
	DefaultMaxPromptTokens = 16000
)

// ErrEmptyCompletion is returned when the model produces no choices.
var ErrEmptyCompletion = errors.New("completion returned no choices")

// Generator produces chat completions with the OpenAI API.
type Generator struct {
	client          *openai.Client
	model           string
	maxPromptTokens int
	logger          *zap.Logger
}

// NewGenerator creates a generator with the given OpenAI client.
// An empty model selects DefaultModel.
func NewGenerator(client *openai.Client, model string, logger *zap.Logger) *Generator {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client:          client,
		model:           model,
		maxPromptTokens: DefaultMaxPromptTokens,
		logger:          logger,
	}
}

// Model returns the chat model name.
func (g *Generator) Model() string {
	return g.model
}

// Complete sends one system + user exchange and returns the reply text.
func (g *Generator) Complete(ctx context.Context, req rag.CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(g.truncateContent(req.User)),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return resp.Choices[0].Message.Content, nil
}

// truncateContent truncates content to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Generator) truncateContent(content string) string {
	maxChars := g.maxPromptTokens * 4
	if len(content) <= maxChars {
		return content
	}

	g.logger.Warn("truncating prompt",
		zap.Int("from_chars", len(content)),
		zap.Int("to_chars", maxChars),
		zap.Int("estimated_tokens", g.maxPromptTokens),
	)
	return truncateUTF8(content, maxChars)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
