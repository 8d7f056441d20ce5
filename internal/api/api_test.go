package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/memstore"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := store.New(store.Options{
		Repository: memstore.New(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    metrics.NewCollector(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(s, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createConversation(t *testing.T, srv *httptest.Server, user string) uuid.UUID {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/conversations", user, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[CreateResponse](t, resp).ID
}

func TestConversationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	id := createConversation(t, srv, "42")
	path := "/conversations/" + id.String()

	resp := do(t, srv, http.MethodPost, path+"/messages", "42", map[string]any{
		"branch_point": 0,
		"message":      map[string]any{"msgtype": "text", "content": "What is the capital of Italy"},
		"answer":       "Rome",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv := decode[models.Conversation](t, resp)
	assert.Equal(t, "What is the", conv.Title)
	require.Len(t, conv.Log, 2)
	assert.Equal(t, 1, conv.Log[0].ID)
	assert.Equal(t, 1, conv.Log[1].ID)

	// No branch point appends at the tail.
	resp = do(t, srv, http.MethodPost, path+"/messages", "42", map[string]any{
		"message": map[string]any{"msgtype": "text", "content": "And of France"},
		"answer":  "Paris",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv = decode[models.Conversation](t, resp)
	require.Len(t, conv.Log, 4)
	assert.Equal(t, "Paris", conv.Log[3].Content)

	// Editing the second question discards the last exchange.
	resp = do(t, srv, http.MethodPost, path+"/messages", "42", map[string]any{
		"branch_point": 2,
		"message":      map[string]any{"msgtype": "text", "content": "And of Spain"},
		"answer":       "Madrid",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv = decode[models.Conversation](t, resp)
	require.Len(t, conv.Log, 4)
	assert.Equal(t, "Madrid", conv.Log[3].Content)

	resp = do(t, srv, http.MethodPatch, path, "42", map[string]any{"title": "Capitals"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Capitals", decode[models.Conversation](t, resp).Title)

	resp = do(t, srv, http.MethodGet, path, "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	conv = decode[models.Conversation](t, resp)
	assert.Equal(t, "Capitals", conv.Title)
	assert.Len(t, conv.Log, 4)

	resp = do(t, srv, http.MethodGet, "/conversations", "42", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]models.ConversationSummary](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 4, list[0].MessageCount)
}

func TestEmptyListIsArray(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, srv, http.MethodGet, "/conversations", "7", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(body)))
}

func TestUserHeaderRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, srv, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/conversations", "alice", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOtherUsersConversationIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	id := createConversation(t, srv, "1")
	path := "/conversations/" + id.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"get", http.MethodGet, path, nil},
		{"rename", http.MethodPatch, path, map[string]any{"title": "mine now"}},
		{"append", http.MethodPost, path + "/messages", map[string]any{
			"message": map[string]any{"msgtype": "text", "content": "hi"}, "answer": "hello",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, tt.method, tt.path, "2", tt.body)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}

	resp := do(t, srv, http.MethodGet, "/conversations/not-a-uuid", "1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAppendValidation(t *testing.T) {
	srv := newTestServer(t)
	id := createConversation(t, srv, "1")
	path := "/conversations/" + id.String() + "/messages"

	tests := []struct {
		name string
		body any
		code string
	}{
		{"branch point past end", map[string]any{
			"branch_point": 1,
			"message":      map[string]any{"msgtype": "text", "content": "hi"},
		}, CodeInvalidBranchPoint},
		{"negative branch point", map[string]any{
			"branch_point": -1,
			"message":      map[string]any{"msgtype": "text", "content": "hi"},
		}, CodeInvalidBranchPoint},
		{"unknown msgtype", map[string]any{
			"message": map[string]any{"msgtype": "video", "content": "hi"},
		}, CodeInvalidMessage},
		{"missing msgtype", map[string]any{
			"message": map[string]any{"content": "hi"},
		}, CodeInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, srv, http.MethodPost, path, "1", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, resp).Code)
		})
	}

	resp := do(t, srv, http.MethodGet, "/conversations/"+id.String(), "1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[models.Conversation](t, resp).Log, "rejected appends leave the log untouched")
}

func TestRenameRequiresTitle(t *testing.T) {
	srv := newTestServer(t)
	id := createConversation(t, srv, "1")

	resp := do(t, srv, http.MethodPatch, "/conversations/"+id.String(), "1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, srv, http.MethodPatch, "/conversations/"+id.String(), "1", map[string]any{"title": ""})
	assert.Equal(t, http.StatusOK, resp.StatusCode, "an empty title is a valid rename")
}

func TestHealthAndStats(t *testing.T) {
	srv := newTestServer(t)
	createConversation(t, srv, "1")

	resp := do(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[metrics.Snapshot](t, resp)
	require.NotNil(t, snap.Create)
	assert.EqualValues(t, 1, snap.Create.Count)

	resp = do(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatlog_http_requests_total")
}

type fakeStore struct {
	ConversationStore
	err error
}

func (f fakeStore) Get(context.Context, int64, uuid.UUID) (*models.Conversation, error) {
	return nil, f.err
}

func (f fakeStore) Ping(context.Context) error { return f.err }

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"serialization", &store.SerializationError{Err: errors.New("bad msgtype")}, http.StatusInternalServerError},
		{"persistence", &store.PersistenceError{Op: "get conversation", Err: errors.New("connection reset")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(fakeStore{err: tt.err}, slog.New(slog.NewTextHandler(io.Discard, nil)))
			req := httptest.NewRequest(http.MethodGet, "/conversations/"+uuid.NewString(), nil)
			req.Header.Set(UserIDHeader, "1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	h := NewRouter(fakeStore{err: errors.New("down")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
