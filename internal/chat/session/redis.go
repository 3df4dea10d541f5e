package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signal-ai/backend/internal/cache/redis"
)

const sessionTTL = 7 * 24 * time.Hour

// RedisStore persists sessions in redis so history survives restarts and
// is shared across instances. Each session is one JSON blob; appends go
// through read-modify-write under the same cap as the memory store.
type RedisStore struct {
	cache    *redis.Client
	maxTurns int
}

func NewRedisStore(cache *redis.Client, maxTurns int) *RedisStore {
	return &RedisStore{cache: cache, maxTurns: maxTurns}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	data, err := s.cache.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, redis.ErrCacheMiss) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return turns, nil
}

func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	existing, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	updated := append(existing, turns...)
	if len(updated) > s.maxTurns {
		updated = updated[len(updated)-s.maxTurns:]
	}

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}
	return s.cache.Set(ctx, sessionKey(sessionID), data, sessionTTL)
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, sessionKey(sessionID))
}

func sessionKey(id string) string {
	return "session:" + id
}
