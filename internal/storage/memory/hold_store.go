package memory

import (
	"context"
	"sync"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

// HoldStore is the reference in-memory implementation of storage.HoldStore.
// A single mutex covers the id index, the idempotency-key index and the
// insertion order, which makes InsertIfAbsent an atomic check-then-create.
type HoldStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Hold
	byKey map[string]string // idempotency key -> hold_id
	order []string
}

// NewHoldStore creates a new in-memory hold store.
func NewHoldStore() *HoldStore {
	return &HoldStore{
		byID:  make(map[string]*domain.Hold),
		byKey: make(map[string]string),
	}
}

// InsertIfAbsent adds a new hold. Returns ErrDuplicateKey if the hold_id
// or a non-empty idempotency_key already exists.
func (s *HoldStore) InsertIfAbsent(_ context.Context, h *domain.Hold) error {
	if h == nil || h.HoldID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[h.HoldID]; exists {
		return storage.ErrDuplicateKey
	}
	if h.IdempotencyKey != "" {
		if _, exists := s.byKey[h.IdempotencyKey]; exists {
			return storage.ErrDuplicateKey
		}
	}

	stored := h.Clone()
	s.byID[stored.HoldID] = stored
	if stored.IdempotencyKey != "" {
		s.byKey[stored.IdempotencyKey] = stored.HoldID
	}
	s.order = append(s.order, stored.HoldID)
	return nil
}

// GetByID retrieves a hold by its id. Returns ErrNotFound if not exists.
func (s *HoldStore) GetByID(_ context.Context, holdID string) (*domain.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.byID[holdID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return h.Clone(), nil
}

// GetByIdempotencyKey retrieves the hold bound to an idempotency key.
func (s *HoldStore) GetByIdempotencyKey(_ context.Context, key string) (*domain.Hold, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	holdID, exists := s.byKey[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return s.byID[holdID].Clone(), nil
}

// UpdateStatus moves a hold to the next status, applying upd atomically.
func (s *HoldStore) UpdateStatus(_ context.Context, holdID string, next domain.HoldStatus, upd storage.HoldUpdate) (*domain.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.byID[holdID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	if !domain.CanTransition(h.Status, next) {
		return nil, storage.ErrInvalidTransition
	}

	h.Status = next
	if upd.TxHash != "" {
		h.TxHash = upd.TxHash
	}
	if upd.ExplorerURL != "" {
		h.ExplorerURL = upd.ExplorerURL
	}
	if upd.BlockNumber != 0 {
		h.BlockNumber = upd.BlockNumber
	}
	if upd.GasUsed != 0 {
		h.GasUsed = upd.GasUsed
	}
	if upd.IsoReceipt != nil {
		rcpt := *upd.IsoReceipt
		h.IsoReceipt = &rcpt
	}
	if upd.SnapshotEmitted != nil && h.PriceSnapshot != nil {
		h.PriceSnapshot.EmittedOnChain = *upd.SnapshotEmitted
	}
	if upd.ErrorCode != "" {
		h.ErrorCode = upd.ErrorCode
	}
	if upd.ErrorMessage != "" {
		h.ErrorMessage = upd.ErrorMessage
	}
	h.UpdatedAt = time.Now().UnixMilli()

	return h.Clone(), nil
}

// AttachTransfer annotates a hold with the transfer it produced.
func (s *HoldStore) AttachTransfer(_ context.Context, holdID, transferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.byID[holdID]
	if !exists {
		return storage.ErrNotFound
	}
	h.TransferID = transferID
	h.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// List retrieves all holds in insertion order.
func (s *HoldStore) List(_ context.Context) ([]*domain.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Hold, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.byID[id].Clone())
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.HoldStore = (*HoldStore)(nil)
