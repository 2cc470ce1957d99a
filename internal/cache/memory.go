// Package cache stores fetched datastore resources keyed by resource id with
// a time-to-live. Both stores satisfy opendata.Cache.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
)

type entry struct {
	res      *opendata.Resource
	storedAt time.Time
}

// Memory is a process-local cache. Entries older than the TTL are treated as
// absent and dropped on the next lookup.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an in-process cache.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// WithClock replaces the time source; used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, resourceID string) (*opendata.Resource, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[resourceID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if m.now().Sub(e.storedAt) >= m.ttl {
		m.mu.Lock()
		if cur, ok := m.entries[resourceID]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(m.entries, resourceID)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.res, true, nil
}

func (m *Memory) Set(_ context.Context, res *opendata.Resource) error {
	m.mu.Lock()
	m.entries[res.ResourceID] = entry{res: res, storedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, resourceID string) error {
	m.mu.Lock()
	delete(m.entries, resourceID)
	m.mu.Unlock()
	return nil
}

