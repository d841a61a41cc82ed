package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"renterchat/internal/model"
)

// MemoryBackend keeps client memories in a process-local map
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]*model.ClientMemory
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryBackend creates an in-process backend. A positive ttl expires
// memories that have not been updated within it.
func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]*model.ClientMemory),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Name implements Backend
func (b *MemoryBackend) Name() string {
	return "memory"
}

// Load implements Backend
func (b *MemoryBackend) Load(_ context.Context, clientID string) (*model.ClientMemory, error) {
	b.mu.RLock()
	mem, ok := b.data[clientID]
	b.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if b.expired(mem) {
		b.mu.Lock()
		if cur, ok := b.data[clientID]; ok && b.expired(cur) {
			delete(b.data, clientID)
		}
		b.mu.Unlock()
		return nil, ErrNotFound
	}

	return mem.Clone(), nil
}

// Save implements Backend
func (b *MemoryBackend) Save(_ context.Context, mem *model.ClientMemory) error {
	b.mu.Lock()
	b.data[mem.ClientID] = mem.Clone()
	b.mu.Unlock()
	return nil
}

// Delete implements Backend
func (b *MemoryBackend) Delete(_ context.Context, clientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.data[clientID]; !ok {
		return ErrNotFound
	}
	delete(b.data, clientID)
	return nil
}

// List implements Backend
func (b *MemoryBackend) List(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]string, 0, len(b.data))
	for id, mem := range b.data {
		if b.expired(mem) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *MemoryBackend) useClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

func (b *MemoryBackend) expired(mem *model.ClientMemory) bool {
	return b.ttl > 0 && b.now().Sub(mem.UpdatedAt) > b.ttl
}
