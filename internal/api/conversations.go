package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/bull/book-rag-server/internal/chatstore"
)

// CreateUserRequest is the request body for POST /api/user.
type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// CreateConversationRequest is the request body for POST /api/conversation.
type CreateConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

// CreateMessageRequest is the request body for POST /api/message.
type CreateMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

const (
	msgUserNotFound         = "Usuario no encontrado"
	msgConversationNotFound = "Conversación no encontrada"
)

// storeError maps store sentinels to HTTP errors. notFound is the 404 message.
func (s *Server) storeError(err error, notFound string) error {
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	case errors.Is(err, chatstore.ErrEmailTaken):
		return echo.NewHTTPError(http.StatusBadRequest, "El email ya está registrado")
	case errors.Is(err, chatstore.ErrInvalidRole):
		return echo.NewHTTPError(http.StatusBadRequest, "El rol debe ser 'user' o 'assistant'")
	}
	s.logger.Error("conversation store failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "Error interno de la base de datos")
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "username and a valid email are required")
	}

	user, err := s.deps.Store.CreateUser(c.Request().Context(), req.Username, req.Email)
	if err != nil {
		return s.storeError(err, msgUserNotFound)
	}
	return c.JSON(http.StatusCreated, user)
}

func (s *Server) handleGetUser(c echo.Context) error {
	user, err := s.deps.Store.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err, msgUserNotFound)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleGetUserByEmail(c echo.Context) error {
	user, err := s.deps.Store.GetUserByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return s.storeError(err, msgUserNotFound)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleListConversations(c echo.Context) error {
	list, err := s.deps.Store.ListConversations(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err, msgUserNotFound)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	conv, err := s.deps.Store.CreateConversation(c.Request().Context(), req.UserID, req.Title)
	if err != nil {
		return s.storeError(err, msgUserNotFound)
	}
	return c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(c echo.Context) error {
	conv, err := s.deps.Store.GetConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	if err := s.deps.Store.DeleteConversation(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Conversación eliminada"})
}

func (s *Server) handleListMessages(c echo.Context) error {
	msgs, err := s.deps.Store.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleCreateMessage(c echo.Context) error {
	var req CreateMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ConversationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation_id is required")
	}

	msg, err := s.deps.Store.AddMessage(c.Request().Context(), req.ConversationID, chatstore.Role(req.Role), req.Content)
	if err != nil {
		return s.storeError(err, msgConversationNotFound)
	}
	return c.JSON(http.StatusCreated, msg)
}
