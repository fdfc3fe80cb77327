package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"ragspace/internal/model"
)

// MemoryStore is the default in-process store: a mutex-guarded map of
// bounded FIFO histories.
type MemoryStore struct {
	mu        sync.Mutex
	maxMsgs   int
	histories map[string][]model.Message
}

// NewMemoryStore creates a store evicting FIFO beyond maxMessages.
func NewMemoryStore(maxMessages int) *MemoryStore {
	return &MemoryStore{
		maxMsgs:   maxMessages,
		histories: make(map[string][]model.Message),
	}
}

func (s *MemoryStore) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.histories[id] = nil
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) Append(_ context.Context, id string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.histories[id], msg)
	if over := len(history) - s.maxMsgs; over > 0 {
		history = history[over:]
	}
	s.histories[id] = history
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.histories[id]
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	return append([]model.Message(nil), history...), nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.histories, id)
	s.mu.Unlock()
	return nil
}
