// Package store provides the transactional conversation store.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/models"
)

// MutateFunc changes a conversation in place inside a unit of work.
// Returning an error aborts the unit of work without writing anything.
// Optimistic repositories may call it again on fresh state after a conflict,
// so it must not have side effects beyond the conversation it is given.
type MutateFunc func(conv *models.Conversation) error

// Repository is the persistence provider behind the Store.
//
// Implementations must run Update as a single atomic unit of work that takes a
// row-locking or conflict-detecting read, so concurrent updates to the same
// conversation serialize. Reads may use weaker isolation.
type Repository interface {
	// Insert stores a new conversation.
	Insert(ctx context.Context, conv *models.Conversation) error

	// ListByUser returns the user's conversations, most recently updated first.
	ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error)

	// Get returns the conversation scoped by both keys, or ErrNotFound.
	Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error)

	// Update loads the conversation scoped by both keys, applies fn and
	// persists the result. Returns ErrNotFound if no row matches.
	Update(ctx context.Context, userID int64, id uuid.UUID, fn MutateFunc) (*models.Conversation, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}
