// Package main provides the sync CLI for indexing and querying the book.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/app"
	"github.com/bull/book-rag-server/internal/chatstore"
	"github.com/bull/book-rag-server/internal/config"
	"github.com/bull/book-rag-server/internal/extract"
	"github.com/bull/book-rag-server/internal/logging"
	"github.com/bull/book-rag-server/internal/rag"
	"github.com/bull/book-rag-server/internal/storage"
)

var (
	configPath string

	ingestFile     string
	ingestStrategy string

	queryMode      string
	queryNResults  int
	queryThreshold float64
	queryJSON      bool
)

var rootCmd = &cobra.Command{
	Use:          "sync",
	Short:        "Book index management tool",
	Long:         "CLI tool for building and querying the vector index of \"Fundamentos de la IA\"",
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Rebuild the index from the book",
	Long: `Extracts the book text, chunks it, embeds every fragment and replaces the
collection with the result.

This command:
1. Extracts the configured page range of the corpus (PDF via pdftotext,
   Markdown or plain text)
2. Normalizes and chunks the text (window or paragraph strategy)
3. Embeds every fragment; on failure the existing index is kept
4. Drops and recreates the collection, then stores the fragments
5. Records the run in the database for get_index_status

Environment variables:
  OPENAI_API_KEY  OpenAI API key (required for the openai provider)
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  RAG_*           Any config key, e.g. RAG_CHUNKING__WINDOW_WORDS=200`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask the book a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index size and the last ingestion run",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $RAG_CONFIG or ./config.yaml)")

	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "corpus file (default corpus.path from config)")
	ingestCmd.Flags().StringVar(&ingestStrategy, "strategy", "", "chunking strategy: window or paragraph (default from config)")

	queryCmd.Flags().StringVar(&queryMode, "mode", "", "full or retrieval_only (alias raw)")
	queryCmd.Flags().IntVar(&queryNResults, "n-results", 0, "number of fragments to retrieve (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", -1, "maximum cosine distance (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full result as JSON")

	rootCmd.AddCommand(ingestCmd, queryCmd, statusCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and the logger shared by every command.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	path := ingestFile
	if path == "" {
		path = cfg.Corpus.Path
	}

	fmt.Printf("Extracting %s...\n", path)
	raw, err := app.NewExtractor(cfg.Corpus).Extract(ctx, path)
	if errors.Is(err, extract.ErrPDFToolNotFound) {
		return fmt.Errorf("%w\n\n%s", err, extract.InstallInstructions())
	}
	if err != nil {
		return fmt.Errorf("failed to extract corpus: %w", err)
	}

	store, err := app.OpenVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	embedder, err := app.NewEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	pipeline, err := app.NewIngestPipeline(cfg, ingestStrategy, embedder, store, logger)
	if err != nil {
		return err
	}

	fmt.Println("Chunking and embedding...")
	result, err := pipeline.Ingest(ctx, raw)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	db, err := chatstore.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if _, err := db.RecordIngestRun(ctx, chatstore.IngestRun{
		Collection:   result.Collection,
		Corpus:       cfg.Corpus.Name,
		Strategy:     string(result.Strategy),
		Fragments:    result.Fragments,
		DroppedWords: result.DroppedWords,
		Dimension:    result.Dimension,
		StartedAt:    start.UTC(),
		Duration:     result.Duration,
	}); err != nil {
		logger.Warn("failed to record ingest run", zap.Error(err))
	}

	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Collection: %s\n", result.Collection)
	fmt.Printf("  Strategy: %s\n", result.Strategy)
	fmt.Printf("  Fragments: %d\n", result.Fragments)
	fmt.Printf("  Embedding model: %s\n", embedder.Model())
	fmt.Printf("  Dimension: %d\n", result.Dimension)
	if result.DroppedWords > 0 {
		fmt.Printf("  Dropped trailing words: %d\n", result.DroppedWords)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	mode, err := rag.ParseMode(queryMode)
	if err != nil {
		return err
	}

	store, err := app.OpenVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	embedder, err := app.NewEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	completer, err := app.NewCompleter(cfg, logger)
	if err != nil {
		return err
	}
	logger.Debug("query providers",
		zap.String("embedding_model", embedder.Model()),
		zap.String("generation_model", completer.Model()),
	)
	pipeline, err := app.NewQueryPipeline(cfg, embedder, completer, store, logger, nil)
	if err != nil {
		return err
	}

	req := rag.QueryRequest{Query: args[0], Mode: mode}
	if cmd.Flags().Changed("n-results") {
		req.NResults = &queryNResults
	}
	if cmd.Flags().Changed("threshold") {
		req.DistanceThreshold = &queryThreshold
	}

	result, err := pipeline.Run(ctx, req)
	if err != nil {
		return err
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Mode == rag.ModeFull {
		fmt.Println(result.Answer)
		fmt.Println()
	}
	fmt.Printf("Fragments (%d):\n", len(result.Chunks))
	for i, c := range result.Chunks {
		fmt.Printf("  [%d] distance=%.3f chunk=%s\n", i+1, c.Distance, c.Metadata["chunk_index"])
		if result.Mode == rag.ModeRetrievalOnly {
			fmt.Printf("      %s\n", c.Document)
		}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := app.OpenVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	fmt.Printf("Collection: %s (%s)\n", cfg.VectorStore.Collection, cfg.VectorStore.Type)
	n, err := store.Count(ctx, cfg.VectorStore.Collection)
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound):
		fmt.Println("  Fragments: collection does not exist, run `sync ingest`")
	case err != nil:
		return fmt.Errorf("failed to count fragments: %w", err)
	default:
		fmt.Printf("  Fragments: %d\n", n)
	}

	db, err := chatstore.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	fmt.Printf("  Database: %s\n", db.Path())
	run, err := db.LastIngestRun(ctx, cfg.VectorStore.Collection)
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		fmt.Println("  Last ingestion: none recorded")
	case err != nil:
		return fmt.Errorf("failed to read ingest history: %w", err)
	default:
		fmt.Printf("  Last ingestion: %s (%s, %d fragments, %d dims, took %s)\n",
			run.StartedAt.Format(time.RFC3339), run.Strategy, run.Fragments, run.Dimension,
			run.Duration.Round(time.Millisecond))
	}
	return nil
}
