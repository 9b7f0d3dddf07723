// Package worker persists proctoring events and attempt reports to
// PostgreSQL asynchronously, fed through Redis queues so the hot path never
// waits on the database.
package worker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/snsgroups/proctor-backend/internal/config"
	"github.com/snsgroups/proctor-backend/internal/model"
)

// RedisQueue pushes engine events onto the persistence queues. It is the
// production session.EventRecorder.
type RedisQueue struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisQueue creates a queue-backed recorder.
func NewRedisQueue(rdb *redis.Client, log zerolog.Logger) *RedisQueue {
	return &RedisQueue{
		rdb: rdb,
		log: log.With().Str("component", "event_queue").Logger(),
	}
}

// RecordViolation enqueues one violation event. A failed push is logged and
// dropped; the counter on the attempt record is the authoritative tally.
func (q *RedisQueue) RecordViolation(ctx context.Context, event model.ViolationEvent) {
	data, _ := json.Marshal(event)
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		q.log.Error().Err(err).Str("kind", string(event.Kind)).Msg("Failed to enqueue violation event")
	}
}

// RecordReport enqueues the finished-attempt report.
func (q *RedisQueue) RecordReport(ctx context.Context, report model.AttemptReport) {
	data, _ := json.Marshal(report)
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, data).Err(); err != nil {
		q.log.Error().Err(err).Str("contest_id", report.ContestID).Msg("Failed to enqueue attempt report")
	}
}
