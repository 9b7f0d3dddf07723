package config

import "fmt"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptKey returns the cache key holding the serialized exam attempt.
// The whole attempt is one record so a partial write can never leave the
// timers and the ledgers disagreeing after a reload.
func (r *CacheKeyStruct) AttemptKey(contestID, studentID string) string {
	return fmt.Sprintf("attempt:%s:%s", contestID, studentID)
}

// AttemptChannel returns the PubSub channel for live attempt monitoring.
func (r *CacheKeyStruct) AttemptChannel(contestID string) string {
	return fmt.Sprintf("attempt:%s:monitor", contestID)
}

var CacheKey = NewCacheKeyStruct()
