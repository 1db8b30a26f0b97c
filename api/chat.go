package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"chatrelay/anthropic"
	"chatrelay/domain"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	Message   string         `json:"message"`
	Images    []ImagePayload `json:"images,omitempty"`
}

// ImagePayload is an inline image attachment on a chat request.
type ImagePayload struct {
	Data     string `json:"data"` // base64-encoded
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Chat relays one user message: it persists the user turn, streams the
// upstream completion back to the caller as SSE events, and persists the
// assembled assistant turn when the stream ends cleanly.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, domain.ErrCodeValidation, "invalid request body")
	}

	text := strings.TrimSpace(req.Message)
	if text == "" && req.SessionID == "" {
		return errorJSON(c, domain.ErrCodeValidation, "message must not be empty")
	}
	if err := validateImages(req.Images); err != nil {
		return errorJSON(c, domain.ErrCodeValidation, err.Error())
	}

	sess, err := h.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		log.Printf("ERROR: failed to resolve session: %v", err)
		return errorJSON(c, domain.ErrCodeInternal, "failed to resolve session")
	}

	// The user turn is recorded before the upstream call so it survives an
	// upstream failure.
	userMsg := &domain.Message{
		Role:        domain.RoleUser,
		Content:     req.Message,
		Attachments: toAttachments(req.Images),
	}
	stored, err := h.store.AddMessage(ctx, sess.ID, userMsg)
	if err != nil {
		log.Printf("ERROR: failed to persist user message session=%s: %v", sess.ID, err)
		return errorJSON(c, domain.ErrCodeInternal, "failed to save message")
	}

	history := append(append([]domain.Message{}, sess.Messages...), *stored)
	log.Printf("INFO: chat session=%s history=%d message=%q", sess.ID, len(history), truncate(text, 80))

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return errorJSON(c, domain.ErrCodeInternal, "streaming not supported")
	}

	c.Response().Header().Set(HeaderSessionID, sess.ID)
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	// Detached from the request context so a dropped client does not abort
	// the upstream call; the assistant turn is still recorded.
	llmCtx := context.WithoutCancel(ctx)

	opts := anthropic.Options{
		Model:     h.config.Model,
		MaxTokens: h.config.MaxTokens,
		System:    h.config.SystemPrompt,
	}
	fragments, errc := h.llm.StreamComplete(llmCtx, history, opts)

	var buf strings.Builder
	writeFailed := false
	for fragment := range fragments {
		buf.WriteString(fragment)
		if writeFailed {
			continue
		}
		event := domain.StreamEvent{Type: domain.StreamEventContent, Text: fragment}
		if err := writeStreamEvent(c.Response().Writer, flusher, event); err != nil {
			// Client is gone. Keep draining so the assistant turn is still
			// assembled and recorded.
			writeFailed = true
		}
	}

	select {
	case err := <-errc:
		log.Printf("ERROR: streaming completion failed session=%s: %v", sess.ID, err)
		if !writeFailed {
			event := domain.StreamEvent{Type: domain.StreamEventError, Error: streamErrorMessage(err)}
			if writeErr := writeStreamEvent(c.Response().Writer, flusher, event); writeErr != nil {
				log.Printf("WARN: failed to write error event session=%s: %v", sess.ID, writeErr)
			}
		}
		return nil
	default:
	}

	assistantMsg := &domain.Message{Role: domain.RoleAssistant, Content: buf.String()}
	if _, err := h.store.AddMessage(llmCtx, sess.ID, assistantMsg); err != nil {
		log.Printf("ERROR: failed to persist assistant message session=%s: %v", sess.ID, err)
		if !writeFailed {
			event := domain.StreamEvent{Type: domain.StreamEventError, Error: "Failed to save the assistant response. Please try again."}
			writeStreamEvent(c.Response().Writer, flusher, event)
		}
		return nil
	}

	h.sessions.Refresh(llmCtx, sess.ID)

	if !writeFailed {
		if err := writeStreamEvent(c.Response().Writer, flusher, domain.StreamEvent{Type: domain.StreamEventDone}); err != nil {
			log.Printf("WARN: failed to write done event session=%s: %v", sess.ID, err)
		}
	}
	return nil
}

// streamErrorMessage maps an upstream failure to the human-readable text
// carried on the terminal error event. Never a raw stack trace.
func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, anthropic.ErrMissingAPIKey):
		return "The assistant is not configured with an API credential."
	case errors.Is(err, anthropic.ErrNoTextContent):
		return "The assistant returned an empty response. Please try again."
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return "The assistant is receiving too many requests. Please try again shortly."
	}
	return "The assistant is temporarily unavailable. Please try again."
}

func toAttachments(images []ImagePayload) []domain.Attachment {
	if len(images) == 0 {
		return nil
	}
	out := make([]domain.Attachment, len(images))
	for i, img := range images {
		out[i] = domain.Attachment{
			Data:      img.Data,
			MediaType: img.MimeType,
			ByteSize:  img.Size,
		}
	}
	return out
}
