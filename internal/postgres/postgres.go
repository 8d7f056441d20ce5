// Package postgres provides the PostgreSQL conversation repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
)

// Schema creates the conversations table. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id           UUID PRIMARY KEY,
	user_id      BIGINT NOT NULL,
	title        TEXT NOT NULL,
	conversation JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	CHECK (updated_at >= created_at)
);
CREATE INDEX IF NOT EXISTS conversations_user_updated ON conversations (user_id, updated_at DESC);
`

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string
	MaxConns int32
}

// Repository stores conversations in PostgreSQL. Updates lock the target row
// with SELECT ... FOR UPDATE for the duration of the transaction.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Repository = (*Repository)(nil)

// New connects a pool and verifies the connection.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	logger.Info("PostgreSQL connection established", "host", poolCfg.ConnConfig.Host, "database", poolCfg.ConnConfig.Database)
	return &Repository{pool: pool, logger: logger}, nil
}

// Migrate applies the schema.
func (r *Repository) Migrate(ctx context.Context) error {
	r.logger.Info("initializing database schema")
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WipeData deletes all conversations while preserving schema.
// Use for testing only.
func (r *Repository) WipeData(ctx context.Context) error {
	r.logger.Warn("wiping all data from database")
	if _, err := r.pool.Exec(ctx, `TRUNCATE conversations`); err != nil {
		return fmt.Errorf("truncate conversations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (r *Repository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Insert creates a new conversation row.
func (r *Repository) Insert(ctx context.Context, conv *models.Conversation) error {
	data, err := models.EncodeLog(conv.Log)
	if err != nil {
		return &store.SerializationError{Err: err}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO conversations (id, user_id, title, conversation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ID, conv.UserID, conv.Title, data, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// ListByUser returns the user's conversation summaries, most recently updated first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, jsonb_array_length(conversation), created_at, updated_at
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	list := []models.ConversationSummary{}
	for rows.Next() {
		var s models.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

// Get retrieves a conversation scoped by owner and id.
func (r *Repository) Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, conversation, created_at, updated_at
		FROM conversations WHERE id = $1 AND user_id = $2
	`, id, userID)
	return scanConversation(row)
}

// Update locks the row, applies fn and writes the result in one transaction.
// A failing fn or a cancelled ctx rolls everything back.
func (r *Repository) Update(ctx context.Context, userID int64, id uuid.UUID, fn store.MutateFunc) (*models.Conversation, error) {
	var result *models.Conversation

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id, user_id, title, conversation, created_at, updated_at
			FROM conversations WHERE id = $1 AND user_id = $2
			FOR UPDATE
		`, id, userID)
		conv, err := scanConversation(row)
		if err != nil {
			return err
		}

		if err := fn(conv); err != nil {
			return err
		}

		data, err := models.EncodeLog(conv.Log)
		if err != nil {
			return &store.SerializationError{Err: err}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE conversations SET title = $3, conversation = $4, updated_at = $5
			WHERE id = $1 AND user_id = $2
		`, id, userID, conv.Title, data, conv.UpdatedAt); err != nil {
			return fmt.Errorf("update conversation: %w", err)
		}

		result = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanConversation reads one conversation row, mapping no rows to ErrNotFound.
func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var (
		conv      models.Conversation
		data      []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &data, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	log, err := models.DecodeLog(data)
	if err != nil {
		return nil, &store.SerializationError{Err: fmt.Errorf("conversation %s: %w", conv.ID, err)}
	}
	conv.Log = log
	conv.CreatedAt = createdAt.UTC()
	conv.UpdatedAt = updatedAt.UTC()
	return &conv, nil
}
