package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chatrelay/domain"
)

// HistoryMessage is one turn in a history response.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// GetHistory returns a session's messages in insertion order. Reading an
// expired session deletes it and answers 410; a later read answers 404.
// GET /api/chat/history?sessionId=...
func (h *Handler) GetHistory(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return errorJSON(c, domain.ErrCodeValidation, "sessionId is required")
	}

	sess, err := h.store.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionExpired) {
		return errorJSON(c, domain.ErrCodeSessionExpired, "session has expired")
	}
	if err != nil {
		log.Printf("ERROR: failed to get session %s: %v", sessionID, err)
		return errorJSON(c, domain.ErrCodeInternal, "failed to load session")
	}
	if sess == nil {
		return errorJSON(c, domain.ErrCodeNotFound, "session not found")
	}

	messages := make([]HistoryMessage, 0, len(sess.Messages))
	for _, msg := range sess.Messages {
		messages = append(messages, HistoryMessage{
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}

	c.Response().Header().Set(HeaderSessionID, sess.ID)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": sess.ID,
		"messages":  messages,
	})
}

// DeleteHistory deletes a session explicitly.
// DELETE /api/chat/history?sessionId=...
func (h *Handler) DeleteHistory(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return errorJSON(c, domain.ErrCodeValidation, "sessionId is required")
	}

	deleted := h.sessions.Delete(ctx, sessionID)
	return c.JSON(http.StatusOK, map[string]bool{"deleted": deleted})
}

// GetSessionStats returns aggregate session counts.
// GET /api/sessions/stats
func (h *Handler) GetSessionStats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.sessions.Stats(ctx)
	if err != nil {
		log.Printf("ERROR: failed to get session stats: %v", err)
		return errorJSON(c, domain.ErrCodeInternal, "failed to get session stats")
	}
	return c.JSON(http.StatusOK, stats)
}
