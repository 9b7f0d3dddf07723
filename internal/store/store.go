// Package store persists in-progress exam attempts between shell reloads.
//
// The whole attempt is serialized as a single record behind Load/Save/Clear,
// so the timers, ledgers and violation counters can never partially survive
// a reload. The store is cleared exactly once, atomically with a successful
// submission.
package store

import (
	"context"
	"errors"

	"github.com/snsgroups/proctor-backend/internal/model"
)

// ErrNotFound is returned by Load when no attempt record exists.
var ErrNotFound = errors.New("attempt not found")

// AttemptStore is the persistent session store contract.
type AttemptStore interface {
	Load(ctx context.Context, contestID, studentID string) (*model.ExamAttempt, error)
	Save(ctx context.Context, attempt *model.ExamAttempt) error
	Clear(ctx context.Context, contestID, studentID string) error
}
