package embedding

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryBackend is a mutex-guarded LRU with TTL. It is the default
// embedding cache backend for single-process deployments.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	vec       []float32
	expiresAt time.Time
}

// NewMemoryBackend creates an LRU holding up to capacity vectors, each
// valid for ttl. A non-positive ttl disables expiry.
func NewMemoryBackend(capacity int, ttl time.Duration) *MemoryBackend {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBackend{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]float32, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elem, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if b.ttl > 0 && b.now().After(entry.expiresAt) {
		b.order.Remove(elem)
		delete(b.entries, key)
		return nil, false, nil
	}
	b.order.MoveToFront(elem)
	return entry.vec, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, vec []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elem, ok := b.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.vec = vec
		entry.expiresAt = b.now().Add(b.ttl)
		b.order.MoveToFront(elem)
		return nil
	}

	elem := b.order.PushFront(&memoryEntry{key: key, vec: vec, expiresAt: b.now().Add(b.ttl)})
	b.entries[key] = elem

	for b.order.Len() > b.capacity {
		oldest := b.order.Back()
		b.order.Remove(oldest)
		delete(b.entries, oldest.Value.(*memoryEntry).key)
	}
	return nil
}
