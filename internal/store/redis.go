package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// RedisStore keeps attempt records in Redis, one JSON value per attempt.
// Records carry no TTL: an attempt lives until it is explicitly cleared by
// a successful submission or an external full-session reset.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed attempt store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Load(ctx context.Context, contestID, studentID string) (*model.ExamAttempt, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.AttemptKey(contestID, studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}

	var attempt model.ExamAttempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	return &attempt, nil
}

func (s *RedisStore) Save(ctx context.Context, attempt *model.ExamAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	key := config.CacheKey.AttemptKey(attempt.ContestID, attempt.StudentID)
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, contestID, studentID string) error {
	if err := s.rdb.Del(ctx, config.CacheKey.AttemptKey(contestID, studentID)).Err(); err != nil {
		return fmt.Errorf("clear attempt: %w", err)
	}
	return nil
}
