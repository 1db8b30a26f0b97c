package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/anthropic"
	"chatrelay/api"
	"chatrelay/config"
	"chatrelay/domain"
	"chatrelay/session"
	"chatrelay/store"
	"chatrelay/tests/helpers"
)

type testEnv struct {
	echo    *echo.Echo
	handler *api.Handler
	store   store.Store
}

func newTestEnv(t *testing.T, upstreamURL string) *testEnv {
	t.Helper()

	cfg := &config.Config{
		SessionTTL:     time.Hour,
		Model:          "claude-test",
		MaxTokens:      256,
		RetryBaseDelay: 5 * time.Millisecond,
	}
	st := helpers.NewTestMemoryStore(t, cfg.SessionTTL)
	sessions := session.NewManager(st, cfg.SessionTTL)
	llm := anthropic.NewClient(upstreamURL, "test-key", 5*time.Second, cfg.RetryBaseDelay)

	return &testEnv{
		echo:    echo.New(),
		handler: api.NewHandler(st, sessions, llm, cfg),
		store:   st,
	}
}

// newFakeUpstream serves a fixed fragment sequence in the upstream SSE format.
func newFakeUpstream(t *testing.T, fragments []string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
		for _, fragment := range fragments {
			data, _ := json.Marshal(map[string]interface{}{
				"type":  "content_block_delta",
				"delta": map[string]string{"type": "text_delta", "text": fragment},
			})
			fmt.Fprintf(w, "event: content_block_delta\ndata: %s\n\n", data)
		}
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func (env *testEnv) postChat(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)

	require.NoError(t, env.handler.Chat(c))
	return rec
}

func (env *testEnv) getHistory(t *testing.T, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?sessionId="+sessionID, nil)
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)

	require.NoError(t, env.handler.GetHistory(c))
	return rec
}

func parseStreamEvents(t *testing.T, body string) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestChatStreamsAndPersists(t *testing.T) {
	upstream := newFakeUpstream(t, []string{"Hello", " world", "!"})
	env := newTestEnv(t, upstream.URL)

	rec := env.postChat(t, `{"message":"Hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	sessionID := rec.Header().Get(api.HeaderSessionID)
	require.NotEmpty(t, sessionID, "response must carry the generated session id")

	events := parseStreamEvents(t, rec.Body.String())
	require.NotEmpty(t, events)

	var full strings.Builder
	for _, event := range events[:len(events)-1] {
		assert.Equal(t, domain.StreamEventContent, event.Type)
		full.WriteString(event.Text)
	}
	assert.Equal(t, "Hello world!", full.String())
	assert.Equal(t, domain.StreamEventDone, events[len(events)-1].Type)

	// Both turns are persisted, in order.
	histRec := env.getHistory(t, sessionID)
	assert.Equal(t, http.StatusOK, histRec.Code)

	var resp struct {
		Messages []api.HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, domain.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "Hello", resp.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[1].Role)
	assert.Equal(t, "Hello world!", resp.Messages[1].Content)
}

func TestChatKeepsSessionAcrossRequests(t *testing.T) {
	upstream := newFakeUpstream(t, []string{"reply"})
	env := newTestEnv(t, upstream.URL)

	first := env.postChat(t, `{"message":"one"}`)
	sessionID := first.Header().Get(api.HeaderSessionID)
	require.NotEmpty(t, sessionID)

	second := env.postChat(t, fmt.Sprintf(`{"sessionId":%q,"message":"two"}`, sessionID))
	assert.Equal(t, sessionID, second.Header().Get(api.HeaderSessionID))

	histRec := env.getHistory(t, sessionID)
	var resp struct {
		Messages []api.HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 4)
	assert.Equal(t, "one", resp.Messages[0].Content)
	assert.Equal(t, "reply", resp.Messages[1].Content)
	assert.Equal(t, "two", resp.Messages[2].Content)
	assert.Equal(t, "reply", resp.Messages[3].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")

	rec := env.postChat(t, `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeValidation, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.Message)
}

func TestChatRejectsInvalidImage(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")

	rec := env.postChat(t, `{"message":"hi","images":[{"data":"aGVsbG8=","mimeType":"text/plain","size":5}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeValidation, resp.Error.Code)
}

func TestChatUpstreamFailureKeepsUserTurn(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	t.Cleanup(upstream.Close)
	env := newTestEnv(t, upstream.URL)

	rec := env.postChat(t, `{"message":"Hello"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "stream has already started when the failure surfaces")

	events := parseStreamEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, domain.StreamEventError, events[0].Type)
	assert.NotEmpty(t, events[0].Error)
	assert.NotContains(t, events[0].Error, "boom", "upstream detail must not leak to the caller")

	// Only the user turn is persisted for a failed stream.
	sessionID := rec.Header().Get(api.HeaderSessionID)
	histRec := env.getHistory(t, sessionID)
	var resp struct {
		Messages []api.HistoryMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(histRec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, domain.RoleUser, resp.Messages[0].Role)
}

func TestChatPersistsImageAttachments(t *testing.T) {
	upstream := newFakeUpstream(t, []string{"nice picture"})
	env := newTestEnv(t, upstream.URL)

	rec := env.postChat(t, `{"message":"look","images":[{"data":"aGVsbG8=","mimeType":"image/png","size":5}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	sessionID := rec.Header().Get(api.HeaderSessionID)
	sess, err := env.store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Len(t, sess.Messages, 2)
	require.Len(t, sess.Messages[0].Attachments, 1)
	assert.Equal(t, "image/png", sess.Messages[0].Attachments[0].MediaType)
}
