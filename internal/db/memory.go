// Package db provides the local key-value media the client persists to:
// a SQLite-backed Store and an in-process Memory.
package db

import "sync"

// Memory is an in-process key-value medium. Nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]string)}
}

// GetItem returns the value stored under key.
func (m *Memory) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// SetItem stores value under key.
func (m *Memory) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

// RemoveItem deletes key.
func (m *Memory) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
