// Package client provides an HTTP client for the chatlog server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/api"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
)

// Client talks to a chatlog server. Error responses are mapped back onto the
// store's error values, so callers handle remote and local stores alike.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses CHATLOG_SERVER_URL env var or defaults to localhost:8484.
// Timeout can be configured via CHATLOG_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("CHATLOG_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("CHATLOG_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx response that does not map onto a store error.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// do sends a request and decodes a JSON response into result. userID is sent
// as the identity header when non-nil.
func (c *Client) do(ctx context.Context, method, path string, userID *int64, body, result any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != nil {
		req.Header.Set(api.UserIDHeader, strconv.FormatInt(*userID, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &store.PersistenceError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data)
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func responseError(status int, data []byte) error {
	var body api.ErrorResponse
	_ = json.Unmarshal(data, &body)

	switch body.Code {
	case api.CodeNotFound:
		return store.ErrNotFound
	case api.CodeInvalidBranchPoint:
		return fmt.Errorf("%w: %s", store.ErrInvalidBranchPoint, body.Error)
	case api.CodeInvalidMessage:
		return fmt.Errorf("%w: %s", store.ErrInvalidMessage, body.Error)
	case api.CodeSerialization:
		return &store.SerializationError{Err: fmt.Errorf("remote: %s", body.Error)}
	}
	return &StatusError{StatusCode: status, Code: body.Code, Message: body.Error}
}

func conversationPath(id uuid.UUID) string {
	return "/conversations/" + url.PathEscape(id.String())
}

// Create creates an empty conversation owned by userID.
func (c *Client) Create(ctx context.Context, userID int64) (uuid.UUID, error) {
	var resp api.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/conversations", &userID, nil, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// ListByUser lists the user's conversations, most recently updated first.
func (c *Client) ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	list := []models.ConversationSummary{}
	if err := c.do(ctx, http.MethodGet, "/conversations", &userID, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Get fetches one conversation.
func (c *Client) Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(id), &userID, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage submits an exchange at in.BranchPoint, or at the end of the
// log when it is nil.
func (c *Client) AppendMessage(ctx context.Context, in store.AppendInput) (*models.Conversation, error) {
	req := api.AppendRequest{
		BranchPoint: in.BranchPoint,
		Message:     in.Message,
		Answer:      in.Answer,
	}
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPost, conversationPath(in.ConversationID)+"/messages", &in.UserID, req, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Rename sets a conversation title.
func (c *Client) Rename(ctx context.Context, userID int64, id uuid.UUID, title string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodPatch, conversationPath(id), &userID, api.RenameRequest{Title: &title}, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Ping checks the server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Stats fetches the server's operation statistics.
func (c *Client) Stats(ctx context.Context) (metrics.Snapshot, error) {
	var snap metrics.Snapshot
	err := c.do(ctx, http.MethodGet, "/stats", nil, nil, &snap)
	return snap, err
}

// Close releases idle connections.
func (c *Client) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}
