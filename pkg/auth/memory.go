package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository mirrors the GORM repository for tests and local runs.
type MemoryRepository struct {
	mu   sync.Mutex
	keys map[string]*Key
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]*Key)}
}

func (r *MemoryRepository) Insert(_ context.Context, key *Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.ID] = &cp
	return nil
}

func (r *MemoryRepository) FindByHash(_ context.Context, hash string) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.keys {
		if key.KeyHash == hash {
			cp := *key
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keys[id]; ok {
		cp := *key
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryRepository) MarkUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keys[id]; ok {
		key.UsageCount++
		key.LastUsedAt = &at
	}
	return nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keys[id]; ok {
		key.Revoked = true
		key.RevokedAt = &at
	}
	return nil
}

func (r *MemoryRepository) List(_ context.Context, includeRevoked bool) ([]Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for _, key := range r.keys {
		if key.Revoked && !includeRevoked {
			continue
		}
		out = append(out, *key)
	}
	return out, nil
}
