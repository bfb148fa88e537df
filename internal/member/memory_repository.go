package member

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	members map[string]Member
}

// NewMemoryRepository builds an in-memory member store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{members: make(map[string]Member)}
}

func (r *memoryRepository) Create(_ context.Context, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[m.Phone]; exists {
		return ErrExists
	}
	r.members[m.Phone] = m
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[phone]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}
