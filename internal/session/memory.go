package session

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// maxMemorySessions bounds the in-process store; the least recently used session is evicted first.
const maxMemorySessions = 1024

// MemoryStore keeps admin sessions in process. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, memoryEntry]
	now      func() time.Time
}

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	sessions, err := lru.New[string, memoryEntry](maxMemorySessions)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &MemoryStore{sessions: sessions, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Data, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.sessions.Remove(key)
		return nil, false
	}
	return cloneData(entry.data), true
}

func (s *MemoryStore) Set(_ context.Context, key string, data *Data, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions.Add(key, memoryEntry{
		data:      cloneData(data),
		expiresAt: s.now().Add(ttl),
	})
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions.Remove(key)
}

func (s *MemoryStore) Close() error {
	return nil
}
