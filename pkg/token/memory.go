package token

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore mirrors the Redis adapter's semantics for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	nowFunc func() time.Time
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) live(entry memoryEntry) bool {
	return entry.expiresAt.IsZero() || s.nowFunc().Before(entry.expiresAt)
}

func (s *MemoryStore) Create(_ context.Context, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.records[rec.Token]; ok && s.live(entry) {
		return fmt.Errorf("%w: %s", ErrTokenExists, rec.Token)
	}

	entry := memoryEntry{rec: rec}
	if ttl > 0 {
		entry.expiresAt = s.nowFunc().Add(ttl)
	}
	s.records[rec.Token] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[token]
	if !ok || !s.live(entry) {
		return nil, nil
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[token]
	delete(s.records, token)
	return ok && s.live(entry), nil
}

func (s *MemoryStore) Exists(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[token]
	return ok && s.live(entry), nil
}

// Tokens lists all live tokens, for test assertions.
func (s *MemoryStore) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]string, 0, len(s.records))
	for tok, entry := range s.records {
		if s.live(entry) {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// ExpireNow force-expires a token, standing in for TTL elapse in tests.
func (s *MemoryStore) ExpireNow(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
}
