package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"ragspace/internal/model"
)

const badgerKeyPrefix = "conv:"

// BadgerStore persists conversation history on disk so the
// disconnect-time behavior (partial assistant answers are kept) holds
// across process restarts.
type BadgerStore struct {
	db      *badger.DB
	maxMsgs int

	// Append is read-modify-write; serialize it per process. Database
	// transactions protect against other processes.
	mu sync.Mutex
}

// NewBadgerStore opens (or creates) the store at dir.
func NewBadgerStore(dir string, maxMessages int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}
	return &BadgerStore{db: db, maxMsgs: maxMessages}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Create(_ context.Context) (string, error) {
	id := uuid.NewString()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+id), []byte("[]"))
	})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	return id, nil
}

func (s *BadgerStore) Append(_ context.Context, id string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		history, err := readHistory(txn, id)
		if err != nil {
			return err
		}
		history = append(history, msg)
		if over := len(history) - s.maxMsgs; over > 0 {
			history = history[over:]
		}
		data, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("failed to encode history: %w", err)
		}
		return txn.Set([]byte(badgerKeyPrefix+id), data)
	})
}

func (s *BadgerStore) Get(_ context.Context, id string, limit int) ([]model.Message, error) {
	var history []model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		h, err := readHistory(txn, id)
		if err != nil {
			return err
		}
		history = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (s *BadgerStore) Clear(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + id))
	})
}

func readHistory(txn *badger.Txn, id string) ([]model.Message, error) {
	item, err := txn.Get([]byte(badgerKeyPrefix + id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}
	var history []model.Message
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &history)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return history, nil
}
