// Package mcp exposes the book question-answering pipeline as MCP tools.
package mcp

import "github.com/bull/book-rag-server/internal/rag"

// AskBookInput defines the input parameters for the ask_book tool.
type AskBookInput struct {
	// Question is answered from the book only.
	Question string `json:"question" jsonschema:"The question to answer from the book, in Spanish or English"`
	// NResults overrides how many fragments are retrieved.
	NResults int `json:"n_results,omitempty" jsonschema:"Maximum number of book fragments to use as evidence (default from server config)"`
	// DistanceThreshold overrides the maximum cosine distance of evidence.
	DistanceThreshold *float64 `json:"distance_threshold,omitempty" jsonschema:"Maximum cosine distance for a fragment to count as evidence, lower is stricter; 0 keeps exact matches only (default from server config)"`
}

// AskBookOutput contains the grounded answer.
type AskBookOutput struct {
	// Answer is the model's reply or the fixed refusal message.
	Answer string `json:"answer"`
	// Refused is true when the book holds no relevant evidence.
	Refused bool `json:"refused"`
	// Sources are the fragments the answer was grounded on.
	Sources []rag.Result `json:"sources"`
}

// SearchBookInput defines the input parameters for the search_book tool.
type SearchBookInput struct {
	Query             string   `json:"query" jsonschema:"Semantic search query over the book"`
	NResults          int      `json:"n_results,omitempty" jsonschema:"Maximum number of fragments to return (default from server config)"`
	DistanceThreshold *float64 `json:"distance_threshold,omitempty" jsonschema:"Maximum cosine distance of returned fragments (default from server config)"`
}

// SearchBookOutput contains the retrieved fragments.
type SearchBookOutput struct {
	// Results are ranked by ascending distance.
	Results []rag.Result `json:"results"`
	// Message provides informational context (e.g., "No matching fragments found").
	Message string `json:"message,omitempty"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// This tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the vector index.
type StatusOutput struct {
	Collection string `json:"collection"`
	// Fragments is the number of records currently in the collection.
	Fragments int `json:"fragments"`
	// LastIngest describes the most recent recorded ingestion, if any.
	LastIngest *IngestSummary `json:"last_ingest,omitempty"`
	// Warning flags an index that is empty or out of step with the last run.
	Warning string `json:"warning,omitempty"`
}

// IngestSummary is the part of an ingestion run reported to clients.
type IngestSummary struct {
	Corpus       string `json:"corpus"`
	Strategy     string `json:"strategy"`
	Fragments    int    `json:"fragments"`
	DroppedWords int    `json:"dropped_words"`
	Dimension    int    `json:"dimension"`
	StartedAt    string `json:"started_at"` // RFC 3339
}
