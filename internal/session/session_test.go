package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/config"
	"github.com/testscribe/testscribe/internal/domain"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(config.SessionConfig{
		MaxSessions:    2,
		IdleTimeout:    15 * time.Minute,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}, config.SnapshotConfig{MaxDepth: 8, MaxNodes: 1000, Timeout: 30 * time.Second}, nil, nil, zap.NewNop())
	t.Cleanup(func() { m.Close() })
	return m
}

func addFakeSession(m *Manager, id string, lastUsed time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &liveSession{
		id:        id,
		url:       "https://ex.com",
		createdAt: lastUsed,
		lastUsed:  lastUsed,
	}
}

func TestCreateRejectsEmptyURL(t *testing.T) {
	m := testManager(t)
	_, err := m.Create(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeMissingField, domain.ErrorCode(err))
}

func TestCreateEnforcesSessionLimit(t *testing.T) {
	m := testManager(t)
	addFakeSession(m, "s1", time.Now())
	addFakeSession(m, "s2", time.Now())

	_, err := m.Create(context.Background(), "https://ex.com")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeSessionLimit, domain.ErrorCode(err))
}

func TestCloseSession(t *testing.T) {
	m := testManager(t)
	addFakeSession(m, "s1", time.Now())

	require.NoError(t, m.CloseSession("s1"))
	assert.Empty(t, m.List())

	err := m.CloseSession("s1")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeSessionNotFound, domain.ErrorCode(err))
}

func TestListOrdersByCreation(t *testing.T) {
	m := testManager(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	addFakeSession(m, "newer", base.Add(time.Hour))
	addFakeSession(m, "older", base)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "older", list[0].SessionID)
	assert.Equal(t, "newer", list[1].SessionID)
}

func TestReapIdle(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	addFakeSession(m, "stale", now.Add(-20*time.Minute))
	addFakeSession(m, "fresh", now.Add(-time.Minute))

	assert.Equal(t, 1, m.ReapIdle(now))
	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].SessionID)

	assert.Equal(t, 0, m.ReapIdle(now))
}

func TestGetTouchesLastUsed(t *testing.T) {
	m := testManager(t)
	old := time.Now().Add(-10 * time.Minute)
	addFakeSession(m, "s1", old)

	_, err := m.get("s1")
	require.NoError(t, err)

	m.mu.Lock()
	touched := m.sessions["s1"].lastUsed
	m.mu.Unlock()
	assert.True(t, touched.After(old))

	_, err = m.get("missing")
	assert.Equal(t, domain.ErrCodeSessionNotFound, domain.ErrorCode(err))
}

func TestHighlightValidatesInput(t *testing.T) {
	m := testManager(t)
	err := m.Highlight(context.Background(), "s1", "dom-3", "blink")
	assert.Equal(t, domain.ErrCodeInvalidRequest, domain.ErrorCode(err))

	err = m.Highlight(context.Background(), "s1", "", "show")
	assert.Equal(t, domain.ErrCodeMissingField, domain.ErrorCode(err))

	err = m.Highlight(context.Background(), "missing", "dom-3", "show")
	assert.Equal(t, domain.ErrCodeSessionNotFound, domain.ErrorCode(err))
}

// stubAPI replays canned results for handler tests.
type stubAPI struct {
	createInfo *Info
	createErr  error
	syncState  *DOMState
	syncErr    error
	hlErr      error
	persistRes *PersistResult
	persistErr error
	closeErr   error
	sessions   []Info
}

func (s *stubAPI) Create(_ context.Context, url string) (*Info, error) {
	return s.createInfo, s.createErr
}

func (s *stubAPI) SyncDOM(_ context.Context, id string) (*DOMState, error) {
	return s.syncState, s.syncErr
}

func (s *stubAPI) Highlight(_ context.Context, id, domID, action string) error {
	return s.hlErr
}

func (s *stubAPI) PersistSnapshot(_ context.Context, id string) (*PersistResult, error) {
	return s.persistRes, s.persistErr
}

func (s *stubAPI) CloseSession(id string) error { return s.closeErr }

func (s *stubAPI) List() []Info { return s.sessions }

func doRequest(t *testing.T, api API, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	NewRouter(api, nil, zap.NewNop()).ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandlerCreate(t *testing.T) {
	api := &stubAPI{createInfo: &Info{SessionID: "abc", URL: "https://ex.com"}}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions", map[string]string{"url": "https://ex.com"})

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env["success"])
	data := env["data"].(map[string]any)
	assert.Equal(t, "abc", data["session_id"])
}

func TestHandlerCreateLimit(t *testing.T) {
	api := &stubAPI{createErr: domain.SessionLimitError(3)}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions", map[string]string{"url": "https://ex.com"})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeEnvelope(t, rec)
	errObj := env["error"].(map[string]any)
	assert.Equal(t, domain.ErrCodeSessionLimit, errObj["code"])
}

func TestHandlerCreateBadBody(t *testing.T) {
	api := &stubAPI{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	NewRouter(api, nil, zap.NewNop()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSyncNotFound(t *testing.T) {
	api := &stubAPI{syncErr: domain.SessionNotFoundError("ghost")}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions/ghost/sync", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerHighlight(t *testing.T) {
	api := &stubAPI{}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions/abc/highlight",
		map[string]string{"dom_id": "dom-7", "action": "show"})

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "dom-7", data["dom_id"])
	assert.Equal(t, "show", data["action"])
}

func TestHandlerHighlightBadAction(t *testing.T) {
	api := &stubAPI{hlErr: domain.InvalidRequestError("action must be show or hide")}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions/abc/highlight",
		map[string]string{"dom_id": "dom-7", "action": "blink"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPersist(t *testing.T) {
	api := &stubAPI{persistRes: &PersistResult{SnapshotToken: "20260101T000000Z_ex-com", Dir: "snapshots/20260101T000000Z_ex-com"}}
	rec := doRequest(t, api, http.MethodPost, "/api/v1/sessions/abc/snapshot", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Equal(t, "20260101T000000Z_ex-com", data["snapshot_token"])
}

func TestHandlerDelete(t *testing.T) {
	api := &stubAPI{}
	rec := doRequest(t, api, http.MethodDelete, "/api/v1/sessions/abc", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerList(t *testing.T) {
	api := &stubAPI{sessions: []Info{{SessionID: "a"}, {SessionID: "b"}}}
	rec := doRequest(t, api, http.MethodGet, "/api/v1/sessions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec)["data"].(map[string]any)
	assert.Len(t, data["sessions"], 2)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, &stubAPI{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
