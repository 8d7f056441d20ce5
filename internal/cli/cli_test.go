package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/api"
	"github.com/raphaelgruber/chatlog-go/internal/client"
	"github.com/raphaelgruber/chatlog-go/internal/config"
	"github.com/raphaelgruber/chatlog-go/internal/memstore"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ conversationService = (*store.Store)(nil)
	_ conversationService = (*client.Client)(nil)
)

func strPtr(s string) *string { return &s }

func TestTranscriptPlain(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	conv := &models.Conversation{
		ID:        uuid.MustParse("7d3c5f52-6a0e-4bb5-9b7e-0d6a8a6b1c11"),
		Title:     "What is the",
		CreatedAt: created,
		UpdatedAt: created,
		Log: []models.Message{
			{Type: models.MessageTypeText, ID: 1, Role: models.RoleUser, Content: "What is the capital of Italy"},
			{Type: models.MessageTypeText, ID: 1, Role: models.RoleAssistant, Content: "Rome"},
			{Type: models.MessageTypeAudio, ID: 3, Role: models.RoleUser, Content: "blob", Transcription: strPtr("and of france")},
			{Type: models.MessageTypeText, ID: 3, Role: models.RoleAssistant, Content: "Paris"},
			{Type: models.MessageTypeImage, ID: 5, Role: models.RoleUser, Images: []string{"https://x/a.png"}},
		},
	}

	var buf bytes.Buffer
	renderer{theme: defaultTheme}.transcript(&buf, conv)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "What is the\n"))
	assert.Contains(t, out, "[0] user\n  What is the capital of Italy")
	assert.Contains(t, out, "[1] assistant\n  Rome")
	assert.Contains(t, out, "[2] user (audio)\n  and of france")
	assert.Contains(t, out, "[4] user (image)\n  image: https://x/a.png")
	assert.NotContains(t, out, "\x1b[", "plain output has no escape sequences")
}

func TestTranscriptEmpty(t *testing.T) {
	conv := models.NewConversation(1, time.Now())
	var buf bytes.Buffer
	renderer{theme: defaultTheme}.transcript(&buf, conv)
	assert.Contains(t, buf.String(), "New Chat")
	assert.Contains(t, buf.String(), "(empty)")
}

func TestListPlain(t *testing.T) {
	var buf bytes.Buffer
	r := renderer{theme: defaultTheme}

	r.list(&buf, nil)
	assert.Equal(t, "No conversations found.\n", buf.String())

	buf.Reset()
	id := uuid.New()
	r.list(&buf, []models.ConversationSummary{{ID: id, Title: "Capitals", MessageCount: 4, UpdatedAt: time.Now()}})
	assert.Contains(t, buf.String(), "Conversations (1):")
	assert.Contains(t, buf.String(), id.String()+"  Capitals (4 messages")
}

func TestMessageBody(t *testing.T) {
	assert.Equal(t, "(audio, no transcription)", messageBody(models.Message{Type: models.MessageTypeAudio, Content: "blob"}))
	assert.Equal(t, "look\nimage: a\nimage: b", messageBody(models.Message{Type: models.MessageTypeImage, Content: "look", Images: []string{"a", "b"}}))
	assert.Equal(t, "hi", messageBody(models.Message{Type: models.MessageTypeText, Content: "hi"}))
}

func TestBuildUserMessage(t *testing.T) {
	t.Cleanup(func() {
		appendType, appendTranscription, appendImages = string(models.MessageTypeText), "", nil
	})

	appendType, appendTranscription = "audio", "hello there"
	msg, err := buildUserMessage("blob")
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeAudio, msg.Type)
	require.NotNil(t, msg.Transcription)
	assert.Equal(t, "hello there", *msg.Transcription)

	appendType, appendTranscription = "text", ""
	msg, err = buildUserMessage("hi")
	require.NoError(t, err)
	assert.Nil(t, msg.Transcription)

	appendType = "video"
	_, err = buildUserMessage("x")
	assert.Error(t, err)
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Defaults()
	cfg.Backend = config.BackendMemory
	repo, err := openRepository(ctx, cfg, logger, true)
	require.NoError(t, err)
	assert.IsType(t, &memstore.Repository{}, repo)
	require.NoError(t, repo.Close(ctx))

	cfg.Backend = "mongo"
	_, err = openRepository(ctx, cfg, logger, false)
	assert.ErrorContains(t, err, "unknown backend")
}

func TestParseConversationID(t *testing.T) {
	id := uuid.New()
	got, err := parseConversationID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseConversationID("nope")
	assert.Error(t, err)
}

func TestCommandsAgainstServer(t *testing.T) {
	t.Setenv("CHATLOG_CONFIG", "")
	t.Setenv("CHATLOG_BACKEND", config.BackendMemory)
	t.Setenv("CHATLOG_LOG_FILE", filepath.Join(t.TempDir(), "chatlog.log"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := store.New(store.Options{Repository: memstore.New(), Logger: logger, Metrics: metrics.NewCollector()})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(s, logger))
	defer srv.Close()

	ctx := context.Background()
	id, err := s.Create(ctx, 3)
	require.NoError(t, err)

	rootCmd.SetArgs([]string{"--server", srv.URL, "append", "-u", "3", id.String(), "Tell me a joke please", "--answer", "No"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"--server", srv.URL, "rename", "-u", "3", id.String(), "Jokes"})
	require.NoError(t, rootCmd.Execute())

	conv, err := s.Get(ctx, 3, id)
	require.NoError(t, err)
	assert.Equal(t, "Jokes", conv.Title)
	require.Len(t, conv.Log, 2)
	assert.Equal(t, "Tell me a joke please", conv.Log[0].Content)
	assert.Equal(t, "No", conv.Log[1].Content)
}
