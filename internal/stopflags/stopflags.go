// Package stopflags implements the process-wide Stop Flag Set: an atomic
// set of session ids marked for cooperative cancellation, optionally
// mirrored to Redis so multiple replicas share state.
package stopflags

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"apex-diffrun/internal/logging"
)

const redisKeyPrefix = "diffrun:stop:"
const redisTTL = 24 * time.Hour

// Set tracks stopped session ids in memory, with an optional Redis mirror
// for cross-replica visibility. The in-memory map is always authoritative
// for this process; Redis is best-effort.
type Set struct {
	mu      sync.Mutex
	stopped map[uint]struct{}
	redis   *redis.Client
}

// New constructs a Set. redisClient may be nil to run single-replica.
func New(redisClient *redis.Client) *Set {
	return &Set{stopped: make(map[uint]struct{}), redis: redisClient}
}

// Add marks sessionID stopped. Idempotent.
func (s *Set) Add(ctx context.Context, sessionID uint) {
	s.mu.Lock()
	s.stopped[sessionID] = struct{}{}
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.Set(ctx, redisKey(sessionID), "1", redisTTL).Err(); err != nil {
			logging.S().Warnw("stopflags: redis mirror set failed", "session_id", sessionID, "err", err)
		}
	}
}

// Remove clears sessionID's stop flag, called at the start of a new run
// for that session.
func (s *Set) Remove(ctx context.Context, sessionID uint) {
	s.mu.Lock()
	delete(s.stopped, sessionID)
	s.mu.Unlock()

	if s.redis != nil {
		if err := s.redis.Del(ctx, redisKey(sessionID)).Err(); err != nil {
			logging.S().Warnw("stopflags: redis mirror del failed", "session_id", sessionID, "err", err)
		}
	}
}

// Contains reports whether sessionID is currently stopped. Consults the
// local map first; if absent and Redis is configured, falls back to it so
// a stop issued against a different replica still takes effect.
func (s *Set) Contains(ctx context.Context, sessionID uint) bool {
	s.mu.Lock()
	_, local := s.stopped[sessionID]
	s.mu.Unlock()
	if local {
		return true
	}
	if s.redis == nil {
		return false
	}

	n, err := s.redis.Exists(ctx, redisKey(sessionID)).Result()
	if err != nil {
		logging.S().Warnw("stopflags: redis mirror exists failed", "session_id", sessionID, "err", err)
		return false
	}
	return n > 0
}

func redisKey(sessionID uint) string {
	return redisKeyPrefix + strconv.FormatUint(uint64(sessionID), 10)
}
