package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Cache. It is only coherent within a single instance.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// lookup must be called with mu held. Expired entries are evicted.
func (m *Memory) lookup(key string) (string, bool) {
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lookup(key)
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("set %s: ttl must be positive", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("compare and swap %s: ttl must be positive", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lookup(key)
	if !ok || v != expected {
		return false, nil
	}
	m.entries[key] = entry{value: next, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.lookup(key)
	if !ok || v != expected {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if _, ok := m.lookup(k); ok {
			n++
		}
	}
	return n
}
