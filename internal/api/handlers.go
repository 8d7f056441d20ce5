package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
)

// ConversationStore is the store surface the HTTP layer needs.
type ConversationStore interface {
	Create(ctx context.Context, userID int64) (uuid.UUID, error)
	ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, in store.AppendInput) (*models.Conversation, error)
	Rename(ctx context.Context, userID int64, id uuid.UUID, title string) (*models.Conversation, error)
	Ping(ctx context.Context) error
	Stats() metrics.Snapshot
}

// Handler serves the conversation endpoints.
type Handler struct {
	store  ConversationStore
	logger *slog.Logger
}

// NewHandler creates a Handler over s.
func NewHandler(s ConversationStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, logger: logger}
}

// Health reports whether the backing store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns the store's runtime statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

// CreateConversation handles POST /conversations.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	id, err := h.store.Create(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id})
}

// ListConversations handles GET /conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListByUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetConversation handles GET /conversations/{id}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	conv, err := h.store.Get(r.Context(), userIDFrom(r.Context()), id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// AppendMessage handles POST /conversations/{id}/messages.
func (h *Handler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	conv, err := h.store.AppendMessage(r.Context(), store.AppendInput{
		UserID:         userIDFrom(r.Context()),
		ConversationID: id,
		BranchPoint:    req.BranchPoint,
		Message:        req.Message,
		Answer:         req.Answer,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// RenameConversation handles PATCH /conversations/{id}.
func (h *Handler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	conv, err := h.store.Rename(r.Context(), userIDFrom(r.Context()), id, *req.Title)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// conversationID parses the {id} path segment. A malformed id cannot name
// any conversation, so it is reported like an unknown one.
func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	var serr *store.SerializationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeCodedError(w, http.StatusNotFound, CodeNotFound, "conversation not found")
	case errors.Is(err, store.ErrInvalidBranchPoint):
		writeCodedError(w, http.StatusBadRequest, CodeInvalidBranchPoint, err.Error())
	case errors.Is(err, store.ErrInvalidMessage):
		writeCodedError(w, http.StatusBadRequest, CodeInvalidMessage, err.Error())
	case errors.As(err, &serr):
		writeCodedError(w, http.StatusInternalServerError, CodeSerialization, "stored conversation is corrupt")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Error codes carried next to the message in error responses.
const (
	CodeNotFound           = "not_found"
	CodeInvalidBranchPoint = "invalid_branch_point"
	CodeInvalidMessage     = "invalid_message"
	CodeSerialization      = "serialization"
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateResponse is the body of a successful create.
type CreateResponse struct {
	ID uuid.UUID `json:"id"`
}

// AppendRequest is the body of POST /conversations/{id}/messages. A nil
// BranchPoint appends at the end of the log.
type AppendRequest struct {
	BranchPoint *int               `json:"branch_point,omitempty"`
	Message     models.UserMessage `json:"message"`
	Answer      string             `json:"answer"`
}

// RenameRequest is the body of PATCH /conversations/{id}.
type RenameRequest struct {
	Title *string `json:"title"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	code := CodeBadRequest
	switch {
	case status == http.StatusUnauthorized:
		code = CodeUnauthorized
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status >= http.StatusInternalServerError:
		code = CodeInternal
	}
	writeCodedError(w, status, code, message)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
