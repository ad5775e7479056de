package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/book-rag-server/internal/chatstore"
	"github.com/bull/book-rag-server/internal/rag"
	"github.com/bull/book-rag-server/internal/storage"
)

// QueryRunner runs one question through retrieval and, in full mode, generation.
type QueryRunner interface {
	Run(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error)
}

// FragmentCounter reports the size of a collection.
type FragmentCounter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// RunHistory looks up the most recent ingestion run.
type RunHistory interface {
	LastIngestRun(ctx context.Context, collection string) (*chatstore.IngestRun, error)
}

var errEmptyQuestion = errors.New("question must not be empty")

// overrides maps an omitted or zero n_results to the configured default.
// The threshold passes through as given, since 0 is a valid bound.
func overrides(n int, threshold *float64) (*int, *float64) {
	if n > 0 {
		return &n, threshold
	}
	return nil, threshold
}

// makeAskHandler creates the ask_book tool handler.
// The pipeline runs in full mode; a refusal is a normal result.
func makeAskHandler(runner QueryRunner) func(
	context.Context, *mcp.CallToolRequest, AskBookInput,
) (*mcp.CallToolResult, AskBookOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskBookInput) (
		*mcp.CallToolResult, AskBookOutput, error,
	) {
		if strings.TrimSpace(input.Question) == "" {
			return nil, AskBookOutput{}, errEmptyQuestion
		}

		n, threshold := overrides(input.NResults, input.DistanceThreshold)
		result, err := runner.Run(ctx, rag.QueryRequest{
			Query:             input.Question,
			Mode:              rag.ModeFull,
			NResults:          n,
			DistanceThreshold: threshold,
		})
		if err != nil {
			return nil, AskBookOutput{}, fmt.Errorf("%s: %w", rag.ErrorKind(err), err)
		}

		return nil, AskBookOutput{
			Answer:  result.Answer,
			Refused: result.Refused,
			Sources: result.Chunks,
		}, nil
	}
}

// makeSearchHandler creates the search_book tool handler.
// Returns raw fragments without calling the language model.
func makeSearchHandler(runner QueryRunner) func(
	context.Context, *mcp.CallToolRequest, SearchBookInput,
) (*mcp.CallToolResult, SearchBookOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchBookInput) (
		*mcp.CallToolResult, SearchBookOutput, error,
	) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, SearchBookOutput{}, errEmptyQuestion
		}

		n, threshold := overrides(input.NResults, input.DistanceThreshold)
		result, err := runner.Run(ctx, rag.QueryRequest{
			Query:             input.Query,
			Mode:              rag.ModeRetrievalOnly,
			NResults:          n,
			DistanceThreshold: threshold,
		})
		if err != nil {
			return nil, SearchBookOutput{}, fmt.Errorf("%s: %w", rag.ErrorKind(err), err)
		}

		if len(result.Chunks) == 0 {
			return nil, SearchBookOutput{
				Results: []rag.Result{},
				Message: "No matching fragments found. Try broader search terms or a higher distance_threshold.",
			}, nil
		}
		return nil, SearchBookOutput{Results: result.Chunks}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
// A missing collection reports zero fragments; history may be nil.
func makeStatusHandler(counter FragmentCounter, history RunHistory, collection string) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		out := StatusOutput{Collection: collection}

		count, err := counter.Count(ctx, collection)
		switch {
		case errors.Is(err, storage.ErrCollectionNotFound):
			out.Warning = "Collection does not exist. Run `sync ingest` to build the index."
			return nil, out, nil
		case err != nil:
			return nil, StatusOutput{}, fmt.Errorf("index_error: failed to count fragments: %w", err)
		}
		out.Fragments = count

		if history != nil {
			run, err := history.LastIngestRun(ctx, collection)
			switch {
			case errors.Is(err, chatstore.ErrNotFound):
			case err != nil:
				return nil, StatusOutput{}, fmt.Errorf("database_error: failed to read ingest history: %w", err)
			default:
				out.LastIngest = &IngestSummary{
					Corpus:       run.Corpus,
					Strategy:     run.Strategy,
					Fragments:    run.Fragments,
					DroppedWords: run.DroppedWords,
					Dimension:    run.Dimension,
					StartedAt:    run.StartedAt.Format(time.RFC3339),
				}
				if run.Fragments != count {
					out.Warning = fmt.Sprintf("Collection holds %d fragments but the last ingestion wrote %d. Consider re-ingesting.", count, run.Fragments)
				}
			}
		}

		if count == 0 && out.Warning == "" {
			out.Warning = "Collection is empty. Run `sync ingest` to build the index."
		}
		return nil, out, nil
	}
}
