package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bull/book-rag-server/internal/chunking"
	"github.com/bull/book-rag-server/internal/config"
	"github.com/bull/book-rag-server/internal/embedding"
	"github.com/bull/book-rag-server/internal/generation"
	"github.com/bull/book-rag-server/internal/rag"
	"github.com/bull/book-rag-server/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, name := range []string{"RAG_CONFIG", "OPENAI_API_KEY", "QDRANT_HOST", "QDRANT_PORT", "PORT"} {
		t.Setenv(name, "")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.VectorStore.Type = config.StoreChromem
	cfg.VectorStore.Chromem.Path = filepath.Join(t.TempDir(), "chromem")
	return cfg
}

func TestOpenVectorStore_Chromem(t *testing.T) {
	cfg := testConfig(t)

	store, err := OpenVectorStore(context.Background(), cfg.VectorStore, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &storage.ChromemStorage{}, store)
	assert.NoError(t, store.Health(context.Background()))
}

func TestOpenVectorStore_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Type = "pinecone"

	_, err := OpenVectorStore(context.Background(), cfg.VectorStore, nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestNewProviders(t *testing.T) {
	cfg := testConfig(t)

	e, err := NewEmbedder(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &embedding.Embedder{}, e)

	c, err := NewCompleter(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &generation.Generator{}, c)
	assert.Equal(t, cfg.Embedding.Model, e.Model())
	assert.Equal(t, cfg.Generation.Model, c.Model())

	cfg.Embedding.Provider = config.ProviderCompatible
	cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	cfg.Generation.Provider = config.ProviderCompatible
	cfg.Generation.BaseURL = "http://localhost:11434/v1"

	e, err = NewEmbedder(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &embedding.CompatibleEmbedder{}, e)

	c, err = NewCompleter(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &generation.CompatibleGenerator{}, c)
	assert.Equal(t, cfg.Embedding.Model, e.Model())
	assert.Equal(t, cfg.Generation.Model, c.Model())
}

func TestNewProviders_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = ""

	_, err := NewEmbedder(cfg, nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
	_, err = NewCompleter(cfg, nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	cfg.Embedding.Provider = "cohere"
	_, err = NewEmbedder(cfg, nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestNewIngestPipeline(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewIngestPipeline(cfg, "", nil, nil, nil)
	assert.NoError(t, err)

	_, err = NewIngestPipeline(cfg, string(chunking.StrategyParagraph), nil, nil, nil)
	assert.NoError(t, err)

	_, err = NewIngestPipeline(cfg, "sentence", nil, nil, nil)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestNewQueryPipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retrieval.Mode = "raw"

	p, err := NewQueryPipeline(cfg, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, rag.ModeRetrievalOnly, p.Defaults().Mode)
	assert.Equal(t, 8, p.Defaults().NResults)
}
