package db

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

func TestLogValuesOmitsEmptyMedia(t *testing.T) {
	transcript := "hi"
	vals := logValues([]models.Message{
		{Type: models.MessageTypeText, ID: 1, Role: models.RoleUser, Content: "a"},
		{Type: models.MessageTypeAudio, ID: 3, Role: models.RoleUser, Content: "b", Transcription: &transcript},
		{Type: models.MessageTypeImage, ID: 5, Role: models.RoleUser, Images: []string{"x"}},
	})

	require.Len(t, vals, 3)
	assert.Equal(t, map[string]any{"msgtype": "text", "id": 1, "role": "user", "content": "a"}, vals[0])
	assert.Equal(t, "hi", vals[1]["transcription"])
	assert.NotContains(t, vals[1], "images")
	assert.Equal(t, []string{"x"}, vals[2]["images"])
	assert.NotContains(t, vals[2], "transcription")

	assert.NotNil(t, logValues(nil), "empty log is an empty array, not null")
}

func TestRecordUUID(t *testing.T) {
	id := uuid.New()
	got, err := recordUUID(surrealmodels.RecordID{Table: "conversation", ID: id.String()})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = recordUUID(surrealmodels.RecordID{Table: "conversation", ID: 42})
	assert.Error(t, err)

	_, err = recordUUID(surrealmodels.RecordID{Table: "conversation", ID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestToModelRejectsUnknownMessageType(t *testing.T) {
	rec := conversationRecord{
		ID:  surrealmodels.RecordID{Table: "conversation", ID: uuid.NewString()},
		Log: []models.Message{{Type: "video", ID: 1, Role: models.RoleUser}},
	}
	_, err := rec.toModel()
	var serr *store.SerializationError
	require.True(t, errors.As(err, &serr))

	rec.Log = nil
	conv, err := rec.toModel()
	require.NoError(t, err)
	assert.NotNil(t, conv.Log)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(ErrVersionConflict))
	assert.True(t, retryable(wrapQueryError(&errWrap{ErrTransactionConflict})))
	assert.False(t, retryable(store.ErrNotFound))
	assert.False(t, retryable(errors.New("boom")))
}

type errWrap struct{ err error }

func (e *errWrap) Error() string { return "wrapped: " + e.err.Error() }
func (e *errWrap) Unwrap() error { return e.err }
