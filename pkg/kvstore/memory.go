package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/dealflow/pkg/clock"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store. Expired keys are dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.New()
	}

	return &Memory{clock: c, entries: make(map[string]entry)}
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}

	m.entries[key] = m.newEntry(value, ttl)

	return true, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key)

	return e.value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = m.newEntry(value, ttl)
	m.mu.Unlock()

	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	return nil
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}

	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)

		return entry{}, false
	}

	return e, true
}

func (m *Memory) newEntry(value string, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}

	return e
}
