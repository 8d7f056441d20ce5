// Package memstore provides an in-process conversation repository for
// development and tests. Data does not survive a restart.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
)

// Repository keeps conversations in memory. Updates hold the write lock for
// the whole load-mutate-commit sequence, so they are serialized.
type Repository struct {
	mu    sync.RWMutex
	convs map[uuid.UUID]*models.Conversation
}

var _ store.Repository = (*Repository)(nil)

// New creates an empty repository.
func New() *Repository {
	return &Repository{convs: make(map[uuid.UUID]*models.Conversation)}
}

// Insert stores a copy of conv.
func (r *Repository) Insert(ctx context.Context, conv *models.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.convs[conv.ID] = conv.Clone()
	return nil
}

// ListByUser returns summaries ordered by updated_at descending.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := []models.ConversationSummary{}
	for _, c := range r.convs {
		if c.UserID == userID {
			list = append(list, c.Summary())
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].ID.String() < list[j].ID.String()
		}
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// Get returns a copy of the conversation scoped by both keys.
func (r *Repository) Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

// Update applies fn to a working copy and commits it only if fn succeeds and
// ctx is still live.
func (r *Repository) Update(ctx context.Context, userID int64, id uuid.UUID, fn store.MutateFunc) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}

	work := c.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.convs[id] = work
	return work.Clone(), nil
}

// Ping always succeeds.
func (r *Repository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (r *Repository) Close(ctx context.Context) error {
	return nil
}
