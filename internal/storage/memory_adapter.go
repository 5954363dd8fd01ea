package storage

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryAdapter provides the RedisAdapter operations for a single process.
type MemoryAdapter struct {
	mu       sync.Mutex
	locks    map[string]entry
	sessions map[string]entry
	now      func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		locks:    make(map[string]entry),
		sessions: make(map[string]entry),
		now:      time.Now,
	}
}

func (m *MemoryAdapter) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.locks[key]; ok && !e.expired(now) {
		return false, nil
	}
	m.locks[key] = entry{value: owner, expiresAt: expiry(now, ttl)}
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.locks[key]; ok && e.value == owner {
		delete(m.locks, key)
	}
	return nil
}

func (m *MemoryAdapter) SaveSession(ctx context.Context, token, subject string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[token] = entry{value: subject, expiresAt: expiry(m.now(), ttl)}
	return nil
}

func (m *MemoryAdapter) LoadSession(ctx context.Context, token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[token]
	if !ok {
		return "", false, nil
	}
	if e.expired(m.now()) {
		delete(m.sessions, token)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryAdapter) DeleteSession(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, token)
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
