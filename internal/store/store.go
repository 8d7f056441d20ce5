package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/chatlog"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
)

// Options configures a Store.
type Options struct {
	Repository Repository
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Store is the per-user conversation log store. Every operation is scoped by
// user id and runs inside a single unit of work of the repository.
// It is safe for concurrent use.
type Store struct {
	repo    Repository
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a Store over the given repository.
func New(opts Options) (*Store, error) {
	if opts.Repository == nil {
		return nil, errors.New("store: repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		repo:    opts.Repository,
		logger:  logger,
		metrics: opts.Metrics,
		now:     clock,
	}, nil
}

// AppendInput describes one resubmission into a conversation.
type AppendInput struct {
	UserID         int64
	ConversationID uuid.UUID

	// BranchPoint is the log index the exchange is submitted at. Messages from
	// that index onward are discarded. Nil means the current end of the log,
	// resolved inside the unit of work.
	BranchPoint *int

	Message models.UserMessage
	Answer  string
}

// BranchAt returns a branch point for AppendInput.
func BranchAt(k int) *int { return &k }

// Create inserts a new empty conversation owned by userID.
func (s *Store) Create(ctx context.Context, userID int64) (id uuid.UUID, err error) {
	defer s.observe(metrics.OpCreate, time.Now(), &err)

	conv := models.NewConversation(userID, s.now().UTC())
	if err := s.repo.Insert(ctx, conv); err != nil {
		return uuid.Nil, classify("create conversation", err)
	}

	metrics.ConversationsCreated.Inc()
	s.logger.Debug("conversation created", "user_id", userID, "conversation_id", conv.ID)
	return conv.ID, nil
}

// ListByUser returns the user's conversations, most recently updated first.
// Returns an empty slice if the user owns none.
func (s *Store) ListByUser(ctx context.Context, userID int64) (list []models.ConversationSummary, err error) {
	defer s.observe(metrics.OpList, time.Now(), &err)

	list, err = s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, classify("list conversations", err)
	}
	if list == nil {
		list = []models.ConversationSummary{}
	}
	return list, nil
}

// Get returns the conversation scoped by both keys.
// Returns ErrNotFound for unknown ids and for conversations of other users.
func (s *Store) Get(ctx context.Context, userID int64, id uuid.UUID) (conv *models.Conversation, err error) {
	defer s.observe(metrics.OpGet, time.Now(), &err)

	conv, err = s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, classify("get conversation", err)
	}
	return conv, nil
}

// AppendMessage truncates the log at the branch point, appends the user
// message and the assistant answer, re-derives the title on the first
// exchange, and persists everything in one unit of work.
func (s *Store) AppendMessage(ctx context.Context, in AppendInput) (conv *models.Conversation, err error) {
	defer s.observe(metrics.OpAppend, time.Now(), &err)

	if !in.Message.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown msgtype %q", ErrInvalidMessage, in.Message.Type)
	}
	if in.BranchPoint != nil && *in.BranchPoint < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBranchPoint, *in.BranchPoint)
	}

	var discarded int
	conv, err = s.repo.Update(ctx, in.UserID, in.ConversationID, func(c *models.Conversation) error {
		bp := len(c.Log)
		if in.BranchPoint != nil {
			bp = *in.BranchPoint
			if bp > len(c.Log) {
				return fmt.Errorf("%w: %d exceeds log length %d", ErrInvalidBranchPoint, bp, len(c.Log))
			}
		}
		discarded = len(c.Log) - bp

		c.Log, c.Title = chatlog.Apply(c.Log, c.Title, bp, in.Message, in.Answer)
		c.Touch(s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, classify("append message", err)
	}

	metrics.MessagesAppended.WithLabelValues(string(in.Message.Type)).Inc()
	if discarded > 0 {
		metrics.MessagesDiscarded.Add(float64(discarded))
	}
	s.logger.Debug("message appended",
		"user_id", in.UserID,
		"conversation_id", in.ConversationID,
		"log_length", len(conv.Log),
		"discarded", discarded,
	)
	return conv, nil
}

// Rename sets a user-chosen title. The title is stored as given, without the
// length clamp applied to derived titles.
func (s *Store) Rename(ctx context.Context, userID int64, id uuid.UUID, title string) (conv *models.Conversation, err error) {
	defer s.observe(metrics.OpRename, time.Now(), &err)

	conv, err = s.repo.Update(ctx, userID, id, func(c *models.Conversation) error {
		c.Title = title
		c.Touch(s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, classify("rename conversation", err)
	}

	s.logger.Debug("conversation renamed", "user_id", userID, "conversation_id", id)
	return conv, nil
}

// Ping checks the repository connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// Close closes the repository.
func (s *Store) Close(ctx context.Context) error {
	return s.repo.Close(ctx)
}

// Stats returns the store's runtime statistics.
func (s *Store) Stats() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// observe records timing and logs failures other than lookup misses and rejected input.
func (s *Store) observe(op string, start time.Time, errp *error) {
	err := *errp
	s.metrics.Record(op, time.Since(start), err)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidBranchPoint) || errors.Is(err, ErrInvalidMessage) {
		return
	}
	s.logger.Error("store operation failed", "op", op, "error", err)
}
