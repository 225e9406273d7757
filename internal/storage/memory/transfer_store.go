package memory

import (
	"context"
	"sync"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

// TransferStore is an in-memory implementation of storage.TransferStore.
type TransferStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Transfer
	order []string
}

// NewTransferStore creates a new in-memory transfer store.
func NewTransferStore() *TransferStore {
	return &TransferStore{
		data: make(map[string]*domain.Transfer),
	}
}

// Insert adds a new transfer. Returns ErrDuplicateKey if id exists.
func (s *TransferStore) Insert(_ context.Context, t *domain.Transfer) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	return nil
}

// GetByID retrieves a transfer by its id. Returns ErrNotFound if not exists.
func (s *TransferStore) GetByID(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

// List retrieves all transfers in insertion order.
func (s *TransferStore) List(_ context.Context) ([]*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transfer, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.data[id].Clone())
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.TransferStore = (*TransferStore)(nil)
