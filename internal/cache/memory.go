package cache

import (
	"context"
	"sync"
	"time"

	"github.com/reelvault/reelvault/internal/model"
)

// Memory is an in-process KeyList used when no redis is configured.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	gen     int64
	entries []entry
	expires time.Time
	now     func() time.Time
}

// NewMemory creates an in-process cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context) ([]model.APIKey, int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entries == nil || !m.now().Before(m.expires) {
		return nil, m.gen, false, nil
	}
	return fromEntries(m.entries), m.gen, true, nil
}

func (m *Memory) Set(_ context.Context, gen int64, keys []model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	m.entries = toEntries(keys)
	m.expires = m.now().Add(m.ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.entries = nil
	return nil
}
