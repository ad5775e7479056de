// Package config loads the server and CLI configuration.
package config

import (
	"fmt"
	"strings"

	"github.com/bull/book-rag-server/internal/chunking"
	"github.com/bull/book-rag-server/internal/logging"
	"github.com/bull/book-rag-server/internal/rag"
)

// Provider names accepted for embedding and generation.
const (
	ProviderOpenAI     = "openai"
	ProviderCompatible = "compatible"
)

// Vector store types.
const (
	StoreQdrant  = "qdrant"
	StoreChromem = "chromem"
)

// Server modes.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Config holds the complete configuration.
type Config struct {
	Corpus      CorpusConfig      `koanf:"corpus"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	OpenAI      OpenAIConfig      `koanf:"openai"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Generation  GenerationConfig  `koanf:"generation"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	VectorStore VectorStoreConfig `koanf:"vector_store"`
	Database    DatabaseConfig    `koanf:"database"`
	Server      ServerConfig      `koanf:"server"`
	Log         logging.Config    `koanf:"log"`
}

// CorpusConfig locates the book. EndPage is exclusive; zero means the last page.
type CorpusConfig struct {
	Path      string `koanf:"path"`
	Name      string `koanf:"name"`
	StartPage int    `koanf:"start_page"`
	EndPage   int    `koanf:"end_page"`
}

type ChunkingConfig struct {
	Strategy     string `koanf:"strategy"`
	WindowWords  int    `koanf:"window_words"`
	OverlapWords int    `koanf:"overlap_words"`
}

type OpenAIConfig struct {
	APIKey string `koanf:"api_key"`
}

type EmbeddingConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	BatchSize int    `koanf:"batch_size"`
}

type GenerationConfig struct {
	Provider    string  `koanf:"provider"`
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

type RetrievalConfig struct {
	Mode              string  `koanf:"mode"`
	NResults          int     `koanf:"n_results"`
	DistanceThreshold float64 `koanf:"distance_threshold"`
}

type VectorStoreConfig struct {
	Type       string        `koanf:"type"`
	Collection string        `koanf:"collection"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
	Chromem    ChromemConfig `koanf:"chromem"`
}

type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	APIKey string `koanf:"api_key"`
	UseTLS bool   `koanf:"use_tls"`
}

type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	Mode        string   `koanf:"mode"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Window returns the chunking window.
func (c ChunkingConfig) Window() chunking.Window {
	return chunking.Window{Words: c.WindowWords, Overlap: c.OverlapWords}
}

// Defaults returns the retrieval defaults for the query pipeline.
func (r RetrievalConfig) Defaults() (rag.Defaults, error) {
	mode, err := rag.ParseMode(r.Mode)
	if err != nil {
		return rag.Defaults{}, err
	}
	return rag.Defaults{Mode: mode, NResults: r.NResults, DistanceThreshold: r.DistanceThreshold}, nil
}

// Validate checks the configuration. Every error wraps rag.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.VectorStore.Collection == "" {
		add("vector_store.collection is required")
	}
	switch c.VectorStore.Type {
	case StoreQdrant:
		if c.VectorStore.Qdrant.Host == "" || c.VectorStore.Qdrant.Port <= 0 {
			add("vector_store.qdrant host and port are required")
		}
	case StoreChromem:
	default:
		add("unknown vector_store.type %q", c.VectorStore.Type)
	}

	if _, err := chunking.ParseStrategy(c.Chunking.Strategy); err != nil {
		add("chunking.strategy: %v", err)
	}
	if c.Chunking.WindowWords < 1 {
		add("chunking.window_words must be at least 1")
	}
	if c.Chunking.OverlapWords < 0 {
		add("chunking.overlap_words must not be negative")
	}

	c.validateProvider("embedding", c.Embedding.Provider, c.Embedding.BaseURL, add)
	c.validateProvider("generation", c.Generation.Provider, c.Generation.BaseURL, add)
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size must be at least 1")
	}
	if c.Generation.MaxTokens < 1 {
		add("generation.max_tokens must be at least 1")
	}

	if _, err := rag.ParseMode(c.Retrieval.Mode); err != nil {
		add("retrieval.mode: unknown mode %q", c.Retrieval.Mode)
	}
	if c.Retrieval.NResults < 1 {
		add("retrieval.n_results must be at least 1")
	}
	if c.Retrieval.DistanceThreshold < 0 {
		add("retrieval.distance_threshold must not be negative")
	}

	if c.Corpus.StartPage < 0 || (c.Corpus.EndPage > 0 && c.Corpus.EndPage <= c.Corpus.StartPage) {
		add("corpus page range [%d, %d) is invalid", c.Corpus.StartPage, c.Corpus.EndPage)
	}
	if c.Database.Path == "" {
		add("database.path is required")
	}
	switch c.Server.Mode {
	case ModeHTTP, ModeStdio:
	default:
		add("unknown server.mode %q", c.Server.Mode)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", rag.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateProvider(section, provider, baseURL string, add func(string, ...any)) {
	switch provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			add("%s: OPENAI_API_KEY is required for the openai provider", section)
		}
	case ProviderCompatible:
		if baseURL == "" {
			add("%s.base_url is required for the compatible provider", section)
		}
	default:
		add("unknown %s.provider %q", section, provider)
	}
}
