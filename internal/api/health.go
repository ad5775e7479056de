package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthResponse represents the JSON response from the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	VectorStore string `json:"vector_store"`
	Database    string `json:"database"`
	Timestamp   string `json:"timestamp"`
}

// handleHealth checks the vector store and the database. An unreachable
// vector store makes the service unhealthy (503); a database failure only
// degrades it, since questions can still be answered.
func (s *Server) handleHealth(c echo.Context) error {
	// Create context with 3-second timeout for health check
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:      "healthy",
		VectorStore: "connected",
		Database:    "connected",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if err := s.deps.Store.Ping(ctx); err != nil {
		s.logger.Warn("database health check failed", zap.Error(err))
		resp.Status = "degraded"
		resp.Database = "disconnected"
	}
	if err := s.deps.Index.Health(ctx); err != nil {
		s.logger.Warn("vector store health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.VectorStore = "disconnected"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, resp)
}
