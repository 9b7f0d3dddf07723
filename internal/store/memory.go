package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/snsgroups/proctor-backend/internal/model"
)

// MemoryStore is an in-process attempt store with the same contract as the
// Redis one. Used in tests and single-node dev mode. Records are kept as
// serialized bytes so Load always returns an independent copy, exactly like
// a round-trip through Redis would.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryStore creates an empty in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, contestID, studentID string) (*model.ExamAttempt, error) {
	s.mu.RLock()
	raw, ok := s.records[model.AttemptKey(contestID, studentID)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var attempt model.ExamAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *MemoryStore) Save(_ context.Context, attempt *model.ExamAttempt) error {
	raw, err := json.Marshal(attempt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[attempt.Key()] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, contestID, studentID string) error {
	s.mu.Lock()
	delete(s.records, model.AttemptKey(contestID, studentID))
	s.mu.Unlock()
	return nil
}

// Len reports how many attempt records are currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
