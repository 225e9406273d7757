package memory

import (
	"context"
	"errors"
	"testing"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

func newTransfer(id string) *domain.Transfer {
	return &domain.Transfer{
		ID:          id,
		Type:        "send",
		Amount:      50,
		ToAddress:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		FromWallet:  "custody",
		TxHash:      "0xtx-" + id,
		ExplorerURL: "https://etherscan.io/tx/0xtx-" + id,
		Status:      domain.TransferCompleted,
		Timestamp:   1700000000000,
	}
}

func TestTransferStore_InsertAndGet(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	tr := newTransfer("t1")
	if err := store.Insert(ctx, tr); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ID != "t1" || got.Status != domain.TransferCompleted {
		t.Errorf("unexpected transfer: %+v", got)
	}
}

func TestTransferStore_Duplicate(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	if err := store.Insert(ctx, newTransfer("t1")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, newTransfer("t1")); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTransferStore_NotFound(t *testing.T) {
	store := NewTransferStore()
	if _, err := store.GetByID(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTransferStore_InvalidInput(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil transfer: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Transfer{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty id: expected ErrInvalidInput, got %v", err)
	}
}

func TestTransferStore_ListOrder(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	ids := []string{"t3", "t1", "t2"}
	for _, id := range ids {
		if err := store.Insert(ctx, newTransfer(id)); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	transfers, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(transfers) != 3 {
		t.Fatalf("expected 3 transfers, got %d", len(transfers))
	}
	for i, id := range ids {
		if transfers[i].ID != id {
			t.Errorf("transfers[%d] = %s, want %s (insertion order)", i, transfers[i].ID, id)
		}
	}
}

func TestTransferStore_CopyOnWrite(t *testing.T) {
	store := NewTransferStore()
	ctx := context.Background()

	tr := newTransfer("t1")
	if err := store.Insert(ctx, tr); err != nil {
		t.Fatal(err)
	}
	tr.Status = domain.TransferFailed

	got, _ := store.GetByID(ctx, "t1")
	if got.Status != domain.TransferCompleted {
		t.Error("store kept a reference to the caller's transfer")
	}
}
