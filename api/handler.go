// Package api implements the HTTP surface of the chat relay.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/anthropic"
	"chatrelay/config"
	"chatrelay/domain"
	"chatrelay/session"
	"chatrelay/store"
)

// HeaderSessionID carries the resolved session identifier on every chat
// response so callers without an id can learn the generated one.
const HeaderSessionID = "X-Session-Id"

// Completer is the upstream completion interface used by the chat handler.
type Completer interface {
	StreamComplete(ctx context.Context, messages []domain.Message, opts anthropic.Options) (<-chan string, <-chan error)
}

// Handler handles chat relay HTTP requests.
type Handler struct {
	store    store.Store
	sessions *session.Manager
	llm      Completer
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, sessions *session.Manager, llm Completer, cfg *config.Config) *Handler {
	return &Handler{
		store:    st,
		sessions: sessions,
		llm:      llm,
		config:   cfg,
	}
}

// RegisterRoutes registers the chat relay routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.POST("/api/chat", h.Chat)
	e.GET("/api/chat/history", h.GetHistory)
	e.DELETE("/api/chat/history", h.DeleteHistory)
	e.GET("/api/sessions/stats", h.GetSessionStats)
}

// Health handles the liveness check.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
