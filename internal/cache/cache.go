// Package cache provides a Redis read-through cache for conversation listings.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/chatlog-go/internal/metrics"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"github.com/raphaelgruber/chatlog-go/internal/store"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached listing may be served.
const DefaultTTL = 30 * time.Second

// Repository wraps a store.Repository and caches ListByUser results in Redis.
// Every successful write bumps the owner's generation and drops the cached
// listing; a listing read before that bump is never cached. Point reads and
// updates always go to the wrapped repository.
type Repository struct {
	next   store.Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.Repository = (*Repository)(nil)

// Connect parses redisURL and verifies the connection.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New wraps next with a listing cache backed by client.
func New(next store.Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{next: next, client: client, ttl: ttl, logger: logger}
}

// Flush drops every cached listing.
func Flush(ctx context.Context, client *redis.Client) error {
	iter := client.Scan(ctx, 0, listKeyPattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cached listings: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached listings: %w", err)
	}
	return nil
}

const listKeyPattern = "chatlog:user:*:conversations"

// listKey returns the key for a user's cached conversation listing.
func listKey(userID int64) string {
	return fmt.Sprintf("chatlog:user:%d:conversations", userID)
}

// generationKey returns the key counting a user's committed writes.
func generationKey(userID int64) string {
	return fmt.Sprintf("chatlog:user:%d:generation", userID)
}

// generationTTL outlives any in-flight listing read. An expired generation
// reads as zero, which never matches a fill that saw a later value.
const generationTTL = time.Hour

// Insert stores the conversation and invalidates the owner's listing.
func (r *Repository) Insert(ctx context.Context, conv *models.Conversation) error {
	if err := r.next.Insert(ctx, conv); err != nil {
		return err
	}
	r.invalidate(ctx, conv.UserID)
	return nil
}

// ListByUser serves the listing from Redis when present. Cache failures fall
// back to the wrapped repository.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	key := listKey(userID)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var list []models.ConversationSummary
		if jerr := json.Unmarshal(data, &list); jerr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return list, nil
		}
		r.logger.Warn("discarding corrupt cached listing", "key", key)
		metrics.CacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		r.logger.Warn("cache read failed", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
	}

	// The generation is read before the backend so a write committed during
	// the read is detected when filling.
	gen, genErr := r.generation(ctx, r.client, userID)

	list, err := r.next.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		r.logger.Warn("cache generation read failed", "user_id", userID, "error", genErr)
		return list, nil
	}

	if encoded, err := json.Marshal(list); err == nil {
		r.fill(ctx, userID, gen, encoded)
	}
	return list, nil
}

// errStaleFill aborts a fill whose listing predates a committed write.
var errStaleFill = errors.New("listing is stale")

// fill caches a listing only if no write has bumped the user's generation
// since it was read. WATCH aborts the transaction if the bump races the SET.
func (r *Repository) fill(ctx context.Context, userID, gen int64, encoded []byte) {
	key := listKey(userID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.generation(ctx, tx, userID)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}, generationKey(userID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("skipping stale cache fill", "key", key)
		metrics.CacheLookups.WithLabelValues("stale").Inc()
	default:
		r.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// generation returns the user's write generation; a missing key is zero.
func (r *Repository) generation(ctx context.Context, c getter, userID int64) (int64, error) {
	gen, err := c.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get reads through to the wrapped repository.
func (r *Repository) Get(ctx context.Context, userID int64, id uuid.UUID) (*models.Conversation, error) {
	return r.next.Get(ctx, userID, id)
}

// Update writes through and invalidates the owner's listing.
func (r *Repository) Update(ctx context.Context, userID int64, id uuid.UUID, fn store.MutateFunc) (*models.Conversation, error) {
	conv, err := r.next.Update(ctx, userID, id, fn)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, userID)
	return conv, nil
}

// Ping checks both Redis and the wrapped repository.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return r.next.Ping(ctx)
}

// Close closes Redis and the wrapped repository.
func (r *Repository) Close(ctx context.Context) error {
	return errors.Join(r.client.Close(), r.next.Close(ctx))
}

// invalidate bumps the owner's generation and drops the cached listing. It
// runs on a context detached from cancellation so a committed write is never
// left behind a stale listing.
func (r *Repository) invalidate(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, listKey(userID))
		return nil
	})
	if err != nil {
		r.logger.Warn("cache invalidation failed", "user_id", userID, "error", err)
	}
}
