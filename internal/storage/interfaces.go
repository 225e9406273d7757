package storage

import (
	"context"

	"ethusd-bridge/internal/domain"
)

// HoldUpdate carries the fields a status transition may set. Zero values
// leave the stored field untouched; price fields are never updatable.
type HoldUpdate struct {
	TxHash          string
	ExplorerURL     string
	BlockNumber     uint64
	GasUsed         uint64
	IsoReceipt      *domain.IsoReceipt
	SnapshotEmitted *bool
	ErrorCode       string
	ErrorMessage    string
}

// HoldStore provides access to hold storage. Implementations must make
// InsertIfAbsent atomic on both hold_id and idempotency_key so that two
// concurrent requests bearing the same key cannot both pass the
// "no existing hold" check.
type HoldStore interface {
	// InsertIfAbsent adds a new hold. Returns ErrDuplicateKey if the
	// hold_id or a non-empty idempotency_key already exists.
	InsertIfAbsent(ctx context.Context, h *domain.Hold) error

	// GetByID retrieves a hold by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, holdID string) (*domain.Hold, error)

	// GetByIdempotencyKey retrieves the hold bound to a client-supplied
	// idempotency key. Returns ErrNotFound if the key is unbound.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Hold, error)

	// UpdateStatus moves a hold to the next status, applying upd.
	// Returns ErrInvalidTransition if the move is not allowed by the
	// hold state machine, ErrNotFound for unknown ids.
	UpdateStatus(ctx context.Context, holdID string, next domain.HoldStatus, upd HoldUpdate) (*domain.Hold, error)

	// AttachTransfer annotates a hold with the transfer it produced.
	// Allowed on terminal holds; this is the only post-terminal write.
	AttachTransfer(ctx context.Context, holdID, transferID string) error

	// List retrieves all holds in insertion order.
	List(ctx context.Context) ([]*domain.Hold, error)
}

// TransferStore provides access to transfer storage.
type TransferStore interface {
	// Insert adds a new transfer. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, t *domain.Transfer) error

	// GetByID retrieves a transfer by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Transfer, error)

	// List retrieves all transfers in insertion order.
	List(ctx context.Context) ([]*domain.Transfer, error)
}

// SnapshotArchive records every oracle read for audit. Archiving is
// best-effort from the orchestrator's point of view: a failed archive
// never fails a mint.
type SnapshotArchive interface {
	// Archive appends one oracle read.
	Archive(ctx context.Context, rec *domain.SnapshotRecord) error

	// GetByPair retrieves archived reads for a pair, ordered by
	// recorded_at ASC.
	GetByPair(ctx context.Context, pair string) ([]*domain.SnapshotRecord, error)
}
