package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnedConversationsAreCopies(t *testing.T) {
	ctx := context.Background()
	r := New()
	conv := models.NewConversation(1, time.Now())
	require.NoError(t, r.Insert(ctx, conv))

	conv.Title = "mutated after insert"
	got, err := r.Get(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTitle, got.Title)

	got.Title = "mutated after get"
	again, err := r.Get(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTitle, again.Title)
}

func TestUpdateFailureDiscardsWorkingCopy(t *testing.T) {
	ctx := context.Background()
	r := New()
	conv := models.NewConversation(1, time.Now())
	require.NoError(t, r.Insert(ctx, conv))

	boom := errors.New("boom")
	_, err := r.Update(ctx, 1, conv.ID, func(c *models.Conversation) error {
		c.Title = "half-done"
		c.Log = append(c.Log, models.Message{Type: models.MessageTypeText, ID: 1, Role: models.RoleUser})
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := r.Get(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTitle, got.Title)
	assert.Empty(t, got.Log)
}

func TestScopedByOwner(t *testing.T) {
	ctx := context.Background()
	r := New()
	conv := models.NewConversation(1, time.Now())
	require.NoError(t, r.Insert(ctx, conv))

	_, err := r.Get(ctx, 2, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.Update(ctx, 2, conv.ID, func(*models.Conversation) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = r.Get(ctx, 1, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListOrderedByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	r := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		c := models.NewConversation(1, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, r.Insert(ctx, c))
		ids = append(ids, c.ID)
	}

	list, err := r.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []uuid.UUID{ids[2], ids[1], ids[0]}, []uuid.UUID{list[0].ID, list[1].ID, list[2].ID})

	none, err := r.ListByUser(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
