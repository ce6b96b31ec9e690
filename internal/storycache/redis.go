package storycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "story_cache"

// RedisBackend хранит список историй пользователя под ключом story_cache:{user}:stories
// и отметку синхронизации под соседним ключом story_cache:{user}:synced_at.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend создает хранилище поверх уже настроенного клиента.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func storiesKey(userID string) string {
	return fmt.Sprintf("%s:%s:stories", redisKeyPrefix, userID)
}

func syncedAtKey(userID string) string {
	return fmt.Sprintf("%s:%s:synced_at", redisKeyPrefix, userID)
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) Load(ctx context.Context, userID string) (Record, bool, error) {
	pipe := b.client.Pipeline()
	storiesCmd := pipe.Get(ctx, storiesKey(userID))
	syncedCmd := pipe.Get(ctx, syncedAtKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, false, fmt.Errorf("failed to load cache record from redis: %w", err)
	}

	stories, err := storiesCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read stories key: %w", err)
	}

	rec := Record{Stories: stories}
	if raw, err := syncedCmd.Result(); err == nil {
		// Испорченная отметка времени не делает запись недоступной.
		if ts, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
			rec.SyncedAt = ts.UTC()
		}
	}
	return rec, true, nil
}

func (b *RedisBackend) Save(ctx context.Context, userID string, rec Record) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, storiesKey(userID), rec.Stories, 0)
		if rec.SyncedAt.IsZero() {
			pipe.Del(ctx, syncedAtKey(userID))
		} else {
			pipe.Set(ctx, syncedAtKey(userID), rec.SyncedAt.UTC().Format(time.RFC3339Nano), 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save cache record to redis: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, userID string) error {
	if err := b.client.Del(ctx, storiesKey(userID), syncedAtKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache record from redis: %w", err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
