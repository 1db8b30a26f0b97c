package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/domain"
)

func TestHistoryMissingParam(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")

	rec := env.getHistory(t, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryNotFound(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")

	rec := env.getHistory(t, "never-created")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeNotFound, resp.Error.Code)
}

func TestHistoryExpiredThenGone(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")
	ctx := context.Background()

	_, err := env.store.CreateSession(ctx, "old", time.Now().Add(-time.Second))
	require.NoError(t, err)

	// The first read answers 410 and removes the session.
	rec := env.getHistory(t, "old")
	assert.Equal(t, http.StatusGone, rec.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ErrCodeSessionExpired, resp.Error.Code)

	// The second read sees plain absence.
	rec = env.getHistory(t, "old")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteHistory(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")
	ctx := context.Background()

	_, err := env.store.CreateSession(ctx, "s1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	deleteHistory := func(sessionID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/chat/history?sessionId="+sessionID, nil)
		rec := httptest.NewRecorder()
		c := env.echo.NewContext(req, rec)
		require.NoError(t, env.handler.DeleteHistory(c))
		return rec
	}

	rec := deleteHistory("s1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())

	rec = deleteHistory("s1")
	assert.JSONEq(t, `{"deleted":false}`, rec.Body.String())
}

func TestSessionStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")
	ctx := context.Background()

	_, err := env.store.CreateSession(ctx, "live", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = env.store.CreateSession(ctx, "dead", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/stats", nil)
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	require.NoError(t, env.handler.GetSessionStats(c))

	assert.Equal(t, http.StatusOK, rec.Code)

	var stats domain.SessionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Expired)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := env.echo.NewContext(req, rec)
	require.NoError(t, env.handler.Health(c))

	assert.Equal(t, http.StatusOK, rec.Code)
}
