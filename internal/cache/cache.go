package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is a TTL key-value store. Expired entries are inert: a Get after the
// TTL has elapsed behaves exactly as if the key were never written.
type Store interface {
	// Get returns the payload for key, or ok=false if absent or expired.
	Get(key string) (payload []byte, ok bool, err error)
	// Set writes payload under key with the given TTL. A ttl of zero or less
	// means the entry never expires.
	Set(key string, payload []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
	// Close releases any resources held by the store.
	Close() error
}

// Cache key namespaces. Each is scoped by an owner token (e.g. a user id) so
// several owners can share one store.
const (
	KeyParams   = "search-params"
	KeyResults  = "search-results"
	KeyProgress = "search-progress"
)

// Key builds a namespaced cache key for an owner.
func Key(namespace, owner string) string {
	return namespace + ":" + owner
}

// GetJSON reads key and unmarshals its payload into v. ok is false when the
// key is absent or expired.
func GetJSON(s Store, key string, v any) (bool, error) {
	payload, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals v and writes it under key with the given TTL.
func SetJSON(s Store, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	return s.Set(key, payload, ttl)
}

type memoryEntry struct {
	payload   []byte
	writtenAt time.Time
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Store with per-entry expiration.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

// Get retrieves a value from the store.
func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.data[key]
	if !exists {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Set stores a value with the given TTL.
func (m *Memory) Set(key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{payload: payload, writtenAt: m.now()}
	if ttl > 0 {
		entry.expiresAt = entry.writtenAt.Add(ttl)
	}
	m.data[key] = entry
	return nil
}

// Delete removes a key from the store.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }
