package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*memCounter
	blobs    map[string]*memBlob

	// now is swappable in tests.
	now func() time.Time
}

type memCounter struct {
	count   int64
	expires time.Time
}

type memBlob struct {
	data    []byte
	expires time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]*memCounter),
		blobs:    make(map[string]*memBlob),
		now:      time.Now,
	}
}

// IncrementWithExpiry implements Store.
func (m *Memory) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c, ok := m.counters[key]
	if !ok || !c.expires.After(now) {
		m.counters[key] = &memCounter{count: 1, expires: now.Add(ttl)}
		return 1, nil
	}
	c.count++
	return c.count, nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || !c.expires.After(m.now()) {
		return 0, false, nil
	}
	return c.count, true, nil
}

// PutJSON implements Store.
func (m *Memory) PutJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = &memBlob{data: data, expires: m.now().Add(ttl)}
	return nil
}

// GetJSON implements Store.
func (m *Memory) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	b, ok := m.blobs[key]
	if !ok || !b.expires.After(m.now()) {
		m.mu.Unlock()
		return false, nil
	}
	data := b.data
	m.mu.Unlock()

	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	delete(m.counters, key)
	return nil
}
