// Package repo persists session artifacts to Redis: the running turn
// transcript while the call is live, and the final session export after it
// ends.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	errx "github.com/trialvoice-core/engine/internal/core/error"
	logx "github.com/trialvoice-core/engine/pkg/logger"
)

type RedisSessionArchive struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionArchive(rdb redis.Cmdable, ttl time.Duration) *RedisSessionArchive {
	return &RedisSessionArchive{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionArchive) transcriptKey(sessionID string) string {
	return fmt.Sprintf("session:%s:transcript", sessionID)
}

func (r *RedisSessionArchive) exportKey(sessionID string) string {
	return fmt.Sprintf("session:%s:export", sessionID)
}

// AppendTurn appends one finalized message to the live transcript.
func (r *RedisSessionArchive) AppendTurn(ctx context.Context, sessionID string, message *schema.Message) error {
	b, err := json.Marshal(message)
	if err != nil {
		logx.Error().Err(err).Str("sessionID", sessionID).Msg("failed to marshal transcript message")
		return fmt.Errorf("marshal transcript message: %w", err)
	}
	key := r.transcriptKey(sessionID)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push transcript message to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on transcript key")
		}
	}
	return nil
}

// Transcript loads the full ordered transcript for a session.
func (r *RedisSessionArchive) Transcript(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	key := r.transcriptKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []*schema.Message{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("sessionID", sessionID).Int("index", i).Msg("failed to unmarshal transcript message")
			return nil, fmt.Errorf("unmarshal transcript message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// ArchiveExport stores the final session export. Best effort from the
// caller's perspective; a failed archive never blocks session teardown.
func (r *RedisSessionArchive) ArchiveExport(ctx context.Context, sessionID string, export any) error {
	b, err := json.Marshal(export)
	if err != nil {
		logx.Error().Err(err).Str("sessionID", sessionID).Msg("failed to marshal session export")
		return fmt.Errorf("marshal session export: %w", err)
	}
	key := r.exportKey(sessionID)
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to store session export in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// LoadExport retrieves a stored session export into out.
func (r *RedisSessionArchive) LoadExport(ctx context.Context, sessionID string, out any) error {
	key := r.exportKey(sessionID)
	s, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return errx.WrapRedis(err)
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session export from redis")
		return errx.WrapRedis(err)
	}
	return json.Unmarshal([]byte(s), out)
}

// ClearTranscript removes the live transcript once the export is archived.
func (r *RedisSessionArchive) ClearTranscript(ctx context.Context, sessionID string) error {
	key := r.transcriptKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript from redis")
		return errx.WrapRedis(err)
	}
	return nil
}
