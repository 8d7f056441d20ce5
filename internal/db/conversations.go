package db

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

var _ store.Repository = (*Client)(nil)

// conversationRecord is the stored shape of a conversation.
type conversationRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	UserID    int64                  `json:"user_id"`
	Title     string                 `json:"title"`
	Log       []models.Message       `json:"conversation"`
	Version   int64                  `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// summaryRecord is the stored shape of a conversation listing row.
type summaryRecord struct {
	ID           surrealmodels.RecordID `json:"id"`
	Title        string                 `json:"title"`
	MessageCount int                    `json:"message_count"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// recordUUID extracts the conversation uuid from a SurrealDB RecordID.
func recordUUID(id surrealmodels.RecordID) (uuid.UUID, error) {
	s, ok := id.ID.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return uuid.Parse(s)
}

func (r conversationRecord) toModel() (*models.Conversation, error) {
	id, err := recordUUID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	log := r.Log
	if log == nil {
		log = []models.Message{}
	}
	for i, m := range log {
		if !m.Type.Valid() {
			return nil, &store.SerializationError{
				Err: fmt.Errorf("conversation %s message %d: unknown msgtype %q", id, i, m.Type),
			}
		}
	}
	return &models.Conversation{
		ID:        id,
		UserID:    r.UserID,
		Title:     r.Title,
		Log:       log,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// logValues converts a log into plain values for the CBOR codec, omitting
// transcription and images when a message has none.
func logValues(log []models.Message) []map[string]any {
	out := make([]map[string]any, 0, len(log))
	for _, m := range log {
		v := map[string]any{
			"msgtype": string(m.Type),
			"id":      m.ID,
			"role":    string(m.Role),
			"content": m.Content,
		}
		if m.Transcription != nil {
			v["transcription"] = *m.Transcription
		}
		if len(m.Images) > 0 {
			v["images"] = m.Images
		}
		out = append(out, v)
	}
	return out
}

// Insert creates a new conversation record.
func (c *Client) Insert(ctx context.Context, conv *models.Conversation) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("conversation", $id) CONTENT {
			user_id: $user_id,
			title: $title,
			conversation: $log,
			version: 0,
			created_at: $created_at,
			updated_at: $updated_at
		}
	`, map[string]any{
		"id":         conv.ID.String(),
		"user_id":    conv.UserID,
		"title":      conv.Title,
		"log":        logValues(conv.Log),
		"created_at": conv.CreatedAt,
		"updated_at": conv.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("create conversation: %w", wrapQueryError(err))
	}
	return nil
}

// ListByUser returns the user's conversation summaries, most recently updated first.
func (c *Client) ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	results, err := surrealdb.Query[[]summaryRecord](ctx, c.db, `
		SELECT id, title, array::len(conversation) AS message_count, created_at, updated_at
		FROM conversation
		WHERE user_id = $user_id
		ORDER BY updated_at DESC
	`, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", wrapQueryError(err))
	}

	list := []models.ConversationSummary{}
	if results == nil || len(*results) == 0 {
		return list, nil
	}
	for _, r := range (*results)[0].Result {
		id, err := recordUUID(r.ID)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		list = append(list, models.ConversationSummary{
			ID:           id,
			Title:        r.Title,
			MessageCount: r.MessageCount,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}
	return list, nil
}

// Get retrieves a conversation scoped by owner and id.
func (c *Client) Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error) {
	rec, err := c.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return rec.toModel()
}

// load reads the full record including its version.
func (c *Client) load(ctx context.Context, userID int64, id uuid.UUID) (*conversationRecord, error) {
	results, err := surrealdb.Query[[]conversationRecord](ctx, c.db, `
		SELECT * FROM type::record("conversation", $id) WHERE user_id = $user_id
	`, map[string]any{"id": id.String(), "user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return &(*results)[0].Result[0], nil
}

// maxRetryDelay caps the backoff between optimistic update attempts.
const maxRetryDelay = 100 * time.Millisecond

// Update runs an optimistic read-modify-write. The write only applies if the
// stored version still matches the one read; otherwise nothing was written and
// the whole attempt is re-run against fresh state. A lost attempt means a
// concurrent writer committed, so retries continue until ctx is done unless
// MaxUpdateAttempts sets a positive cap.
func (c *Client) Update(ctx context.Context, userID int64, id uuid.UUID, fn store.MutateFunc) (*models.Conversation, error) {
	delay := 5 * time.Millisecond
	for attempt := 1; ; attempt++ {
		conv, err := c.tryUpdate(ctx, userID, id, fn)
		if err == nil || !retryable(err) {
			return conv, err
		}
		if c.cfg.MaxUpdateAttempts > 0 && attempt >= c.cfg.MaxUpdateAttempts {
			return nil, fmt.Errorf("update conversation after %d attempts: %w", attempt, err)
		}

		metrics.UpdateConflicts.Inc()
		c.logger.Debug("update conflict, retrying", "conversation_id", id.String(), "attempt", attempt)

		// Jitter keeps writers that collided from colliding again in lockstep.
		wait := delay/2 + rand.N(delay/2+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (c *Client) tryUpdate(ctx context.Context, userID int64, id uuid.UUID, fn store.MutateFunc) (*models.Conversation, error) {
	rec, err := c.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conv, err := rec.toModel()
	if err != nil {
		return nil, err
	}

	if err := fn(conv); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]conversationRecord](ctx, c.db, `
		UPDATE type::record("conversation", $id) SET
			title = $title,
			conversation = $log,
			updated_at = $updated_at,
			version = version + 1
		WHERE user_id = $user_id AND version = $version
		RETURN AFTER
	`, map[string]any{
		"id":         id.String(),
		"user_id":    userID,
		"version":    rec.Version,
		"title":      conv.Title,
		"log":        logValues(conv.Log),
		"updated_at": conv.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, ErrVersionConflict
	}

	updated, err := (*results)[0].Result[0].toModel()
	if err != nil {
		return nil, err
	}
	return updated, nil
}
