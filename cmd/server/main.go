// Package main provides the HTTP and MCP server for questions about the book.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/api"
	"github.com/bull/book-rag-server/internal/app"
	"github.com/bull/book-rag-server/internal/chatstore"
	"github.com/bull/book-rag-server/internal/config"
	"github.com/bull/book-rag-server/internal/logging"
	mcpserver "github.com/bull/book-rag-server/internal/mcp"
	"github.com/bull/book-rag-server/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve questions about the book over HTTP and MCP",
	Long: `Starts the REST API (/api), the MCP endpoint (/mcp), /health and /metrics.
With server.mode=stdio (RAG_SERVER__MODE=stdio) the MCP server runs over
stdin/stdout instead and no HTTP listener is opened.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (default $RAG_CONFIG or ./config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load .env file if present (local development), ignore if missing (production)
	envErr := godotenv.Load()

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := app.OpenVectorStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	db, err := chatstore.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	embedder, err := app.NewEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	completer, err := app.NewCompleter(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("providers ready",
		zap.String("embedding_model", embedder.Model()),
		zap.String("generation_model", completer.Model()),
		zap.String("database", db.Path()),
	)

	recorder := metrics.NewRecorder()
	if n, err := store.Count(ctx, cfg.VectorStore.Collection); err == nil {
		recorder.SetIndexFragments(n)
	} else {
		logger.Warn("collection not ready, run `sync ingest` first",
			zap.String("collection", cfg.VectorStore.Collection), zap.Error(err))
	}

	pipeline, err := app.NewQueryPipeline(cfg, embedder, completer, store, logger.Named("rag"), recorder)
	if err != nil {
		return err
	}

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{
		Runner:     pipeline,
		Index:      store,
		History:    db,
		Collection: cfg.VectorStore.Collection,
	})

	if cfg.Server.Mode == config.ModeStdio {
		logger.Info("starting MCP server (stdio mode)")
		return mcpSrv.Run(ctx)
	}

	httpSrv, err := api.NewServer(api.Deps{
		Runner:  pipeline,
		Store:   db,
		Index:   store,
		Metrics: recorder.Handler(),
		MCP:     mcpserver.NewHTTPHandler(mcpSrv, &mcpserver.HTTPHandlerOptions{Stateless: true}),
	}, logger.Named("http"), api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
