package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/chatstore"
	"github.com/bull/book-rag-server/internal/rag"
)

// RAGRequest is the request body for POST /api/rag. Omitted fields take
// the server's retrieval defaults.
type RAGRequest struct {
	Query             string   `json:"query"`
	Mode              string   `json:"mode,omitempty"`
	NResults          *int     `json:"n_results,omitempty"`
	DistanceThreshold *float64 `json:"distance_threshold,omitempty"`
	ConversationID    string   `json:"conversation_id,omitempty"`
}

// RAGResponse is the response body for POST /api/rag. Response is empty in
// retrieval_only mode.
type RAGResponse struct {
	Response string       `json:"response"`
	Query    string       `json:"query"`
	Mode     rag.Mode     `json:"mode"`
	Chunks   []rag.Result `json:"chunks"`
	Refused  bool         `json:"refused"`
}

// handleRAG answers a question. With a conversation_id the question and
// the answer are appended to that conversation.
func (s *Server) handleRAG(c echo.Context) error {
	ctx := c.Request().Context()

	var req RAGRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	mode, err := rag.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.ConversationID != "" {
		if _, err := s.deps.Store.GetConversation(ctx, req.ConversationID); err != nil {
			return s.storeError(err, msgConversationNotFound)
		}
	}

	result, err := s.deps.Runner.Run(ctx, rag.QueryRequest{
		Query:             req.Query,
		Mode:              mode,
		NResults:          req.NResults,
		DistanceThreshold: req.DistanceThreshold,
	})
	if err != nil {
		s.logger.Error("rag query failed",
			zap.String("kind", rag.ErrorKind(err)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "Error ejecutando RAG")
	}

	if req.ConversationID != "" && result.Answer != "" {
		if err := s.saveExchange(c, req.ConversationID, req.Query, result.Answer); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, RAGResponse{
		Response: result.Answer,
		Query:    result.Query,
		Mode:     result.Mode,
		Chunks:   result.Chunks,
		Refused:  result.Refused,
	})
}

func (s *Server) saveExchange(c echo.Context, conversationID, question, answer string) error {
	ctx := c.Request().Context()
	if _, err := s.deps.Store.AddMessage(ctx, conversationID, chatstore.RoleUser, question); err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	if _, err := s.deps.Store.AddMessage(ctx, conversationID, chatstore.RoleAssistant, answer); err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	return nil
}
