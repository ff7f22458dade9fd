package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 10_000

// MemoryProvider is a bounded LRU with per-key expiry. Markers are only shared within one process.
type MemoryProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryProvider() (*MemoryProvider, error) {
	c, err := lru.New[string, entry](defaultMemoryCacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c, now: time.Now}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.liveLocked(key)
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(key, entry{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryProvider) Claim(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if err := validateTTL(ttl); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveLocked(key); ok {
		return false, nil
	}
	m.cache.Add(key, entry{value: value, expiresAt: m.now().Add(ttl)})
	return true, nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}

// liveLocked returns the value for key, dropping it when expired.
func (m *MemoryProvider) liveLocked(key string) (string, bool) {
	cached, ok := m.cache.Get(key)
	if !ok {
		return "", false
	}
	if m.now().After(cached.expiresAt) {
		m.cache.Remove(key)
		return "", false
	}
	return cached.value, true
}
