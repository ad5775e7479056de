// Package api provides the HTTP surface: the conversation REST API, the
// RAG endpoint, health, metrics, and the MCP streamable HTTP mount.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/chatstore"
	"github.com/bull/book-rag-server/internal/rag"
)

// QueryRunner runs one question through the RAG pipeline.
type QueryRunner interface {
	Run(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error)
}

// ConversationStore persists users, conversations and messages.
type ConversationStore interface {
	CreateUser(ctx context.Context, username, email string) (*chatstore.User, error)
	GetUser(ctx context.Context, id string) (*chatstore.User, error)
	GetUserByEmail(ctx context.Context, email string) (*chatstore.User, error)
	CreateConversation(ctx context.Context, userID, title string) (*chatstore.Conversation, error)
	GetConversation(ctx context.Context, id string) (*chatstore.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]chatstore.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	AddMessage(ctx context.Context, conversationID string, role chatstore.Role, content string) (*chatstore.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]chatstore.Message, error)
	Ping(ctx context.Context) error
}

// HealthChecker reports vector store connectivity.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// Deps are the handlers' collaborators. Metrics and MCP are optional.
type Deps struct {
	Runner  QueryRunner
	Store   ConversationStore
	Index   HealthChecker
	Metrics http.Handler
	MCP     http.Handler
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg Config) (*Server, error) {
	if deps.Runner == nil || deps.Store == nil || deps.Index == nil {
		return nil, errors.New("runner, store and index are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: true,
		}))
	}

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the status is final.
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleLanding)
	s.echo.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}
	if s.deps.MCP != nil {
		s.echo.Any("/mcp", echo.WrapHandler(s.deps.MCP))
	}

	api := s.echo.Group("/api")
	api.POST("/user", s.handleCreateUser)
	api.GET("/user/by-email/:email", s.handleGetUserByEmail)
	api.GET("/user/:id", s.handleGetUser)
	api.GET("/user/:id/conversations", s.handleListConversations)

	api.POST("/conversation", s.handleCreateConversation)
	api.GET("/conversation/:id", s.handleGetConversation)
	api.DELETE("/conversation/:id", s.handleDeleteConversation)
	api.GET("/conversation/:id/messages", s.handleListMessages)

	api.POST("/message", s.handleCreateMessage)
	api.POST("/rag", s.handleRAG)
}

// ServeHTTP lets tests and embedding servers drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
