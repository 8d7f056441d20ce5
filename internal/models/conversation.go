// Package models defines data structures for the chatlog conversation store.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is assigned to every newly created conversation.
const DefaultTitle = "New Chat"

// MaxTitleLength bounds auto-derived titles, in characters.
// User-supplied titles (rename) are not clamped.
const MaxTitleLength = 30

// Conversation represents a persistent, user-owned chat session.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Log       []Message `json:"conversation"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation returns an empty conversation owned by userID.
func NewConversation(userID int64, now time.Time) *Conversation {
	return &Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     DefaultTitle,
		Log:       []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch refreshes UpdatedAt, never moving it before CreatedAt.
func (c *Conversation) Touch(now time.Time) {
	if now.Before(c.CreatedAt) {
		now = c.CreatedAt
	}
	c.UpdatedAt = now
}

// Summary returns the list view of the conversation.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		MessageCount: len(c.Log),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Clone returns a deep copy, so callers can mutate without touching shared state.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Log = CloneLog(c.Log)
	return &cp
}

// ConversationSummary is a conversation without its log, as returned by listings.
type ConversationSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
