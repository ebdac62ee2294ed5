package geo

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// SessionStore remembers that the user declined the permission prompt for
// the rest of the browsing session.
type SessionStore interface {
	Declined(ctx context.Context) (bool, error)
	MarkDeclined(ctx context.Context) error
}

// Sessions hands out the store for a session id.
type Sessions interface {
	Session(id string) SessionStore
}

// DefaultSessionTTL is how long an untouched session flag is kept.
const DefaultSessionTTL = 12 * time.Hour

// MemorySessions keeps flags in process memory. Sessions not used for ttl
// are dropped on the next lookup.
type MemorySessions struct {
	ttl time.Duration
	now func() time.Time

	mu sync.Mutex
	m  map[string]*MemorySession
}

// NewMemorySessions returns an empty store. A nil now uses time.Now.
func NewMemorySessions(ttl time.Duration, now func() time.Time) *MemorySessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemorySessions{ttl: ttl, now: now, m: map[string]*MemorySession{}}
}

func (s *MemorySessions) Session(id string) SessionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if ms, ok := s.m[id]; ok {
		ms.touch()
		return ms
	}
	ms := &MemorySession{now: s.now}
	ms.touch()
	s.m[id] = ms
	return ms
}

// Len returns the number of sessions held.
func (s *MemorySessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemorySessions) sweepLocked() {
	now := s.now()
	for id, ms := range s.m {
		if now.Sub(ms.lastTouched()) >= s.ttl {
			delete(s.m, id)
		}
	}
}

// MemorySession is a single in-memory flag. The zero value is usable.
type MemorySession struct {
	now func() time.Time

	mu       sync.Mutex
	declined bool
	touched  time.Time
}

func (s *MemorySession) touch() {
	if s.now == nil {
		return
	}
	t := s.now()
	s.mu.Lock()
	s.touched = t
	s.mu.Unlock()
}

func (s *MemorySession) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *MemorySession) Declined(context.Context) (bool, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.declined, nil
}

func (s *MemorySession) MarkDeclined(context.Context) error {
	s.touch()
	s.mu.Lock()
	s.declined = true
	s.mu.Unlock()
	return nil
}

// RedisSessions stores flags as keys expiring with the session.
type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

func (s *RedisSessions) Session(id string) SessionStore {
	return &redisSession{rdb: s.rdb, ttl: s.ttl, key: "reliefmap:session:" + id + ":locationPermissionRequestDenied"}
}

type redisSession struct {
	rdb *redis.Client
	ttl time.Duration
	key string
}

func (s *redisSession) Declined(ctx context.Context) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisSession) MarkDeclined(ctx context.Context) error {
	return s.rdb.Set(ctx, s.key, "true", s.ttl).Err()
}
