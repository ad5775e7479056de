package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies. History may be nil.
type Config struct {
	Runner     QueryRunner
	Index      FragmentCounter
	History    RunHistory
	Collection string
	Version    string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "book-rag-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_book",
		Description: "Answer a question strictly from the indexed book \"Fundamentos de la IA\". Returns the answer, the evidence fragments, and refused=true when the book has no relevant information.",
	}, makeAskHandler(cfg.Runner))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_book",
		Description: "Semantic search over the indexed book. Returns matching fragments ranked by cosine distance without generating an answer.",
	}, makeSearchHandler(cfg.Runner))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the book index: collection name, fragment count, and the last recorded ingestion run.",
	}, makeStatusHandler(cfg.Index, cfg.History, cfg.Collection))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
