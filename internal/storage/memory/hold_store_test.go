package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

func newHold(id, key string) *domain.Hold {
	return &domain.Hold{
		HoldID:         id,
		Ref:            "DAES-ETH-1-" + id,
		Status:         domain.HoldPending,
		AmountUsd:      100,
		Beneficiary:    "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		IdempotencyKey: key,
		PriceSnapshot:  &domain.PriceSnapshot{EthUsdPrice: 2500, PriceDecimals: 8, PriceTs: 1700000000},
		CreatedAt:      1700000000000,
	}
}

func TestHoldStore_InsertAndGet(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	h := newHold("0xh1", "key-1")
	if err := store.InsertIfAbsent(ctx, h); err != nil {
		t.Fatalf("InsertIfAbsent failed: %v", err)
	}

	got, err := store.GetByID(ctx, "0xh1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.HoldID != h.HoldID || got.Status != domain.HoldPending {
		t.Errorf("unexpected hold: %+v", got)
	}

	byKey, err := store.GetByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey failed: %v", err)
	}
	if byKey.HoldID != "0xh1" {
		t.Errorf("key resolved to %s, want 0xh1", byKey.HoldID)
	}
}

func TestHoldStore_DuplicateID(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := store.InsertIfAbsent(ctx, newHold("0xh1", ""))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestHoldStore_DuplicateIdempotencyKey(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "abc")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := store.InsertIfAbsent(ctx, newHold("0xh2", "abc"))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey for reused idempotency key, got %v", err)
	}
}

func TestHoldStore_NotFound(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if _, err := store.GetByID(ctx, "0xnope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByIdempotencyKey(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHoldStore_UpdateStatus(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	h, err := store.UpdateStatus(ctx, "0xh1", domain.HoldSubmitted, storage.HoldUpdate{
		TxHash:      "0xtx1",
		ExplorerURL: "https://etherscan.io/tx/0xtx1",
	})
	if err != nil {
		t.Fatalf("PENDING->SUBMITTED failed: %v", err)
	}
	if h.Status != domain.HoldSubmitted || h.TxHash != "0xtx1" {
		t.Errorf("unexpected hold after submit: %+v", h)
	}

	emitted := true
	h, err = store.UpdateStatus(ctx, "0xh1", domain.HoldConfirmed, storage.HoldUpdate{
		BlockNumber:     42,
		GasUsed:         21000,
		SnapshotEmitted: &emitted,
	})
	if err != nil {
		t.Fatalf("SUBMITTED->CONFIRMED failed: %v", err)
	}
	if h.BlockNumber != 42 || !h.PriceSnapshot.EmittedOnChain {
		t.Errorf("unexpected hold after confirm: %+v", h)
	}

	// Terminal states admit no further transitions.
	_, err = store.UpdateStatus(ctx, "0xh1", domain.HoldFailed, storage.HoldUpdate{})
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from CONFIRMED, got %v", err)
	}
}

func TestHoldStore_UpdateStatus_SkipSubmitted(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// PENDING -> CONFIRMED is not a legal move.
	_, err := store.UpdateStatus(ctx, "0xh1", domain.HoldConfirmed, storage.HoldUpdate{})
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// PENDING -> FAILED is.
	h, err := store.UpdateStatus(ctx, "0xh1", domain.HoldFailed, storage.HoldUpdate{
		ErrorCode: "BROADCAST_FAILED",
	})
	if err != nil {
		t.Fatalf("PENDING->FAILED failed: %v", err)
	}
	if h.ErrorCode != "BROADCAST_FAILED" {
		t.Errorf("ErrorCode = %q, want BROADCAST_FAILED", h.ErrorCode)
	}
}

func TestHoldStore_PriceFieldsImmutable(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	h := newHold("0xh1", "")
	if err := store.InsertIfAbsent(ctx, h); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	before, _ := store.GetByID(ctx, "0xh1")

	if _, err := store.UpdateStatus(ctx, "0xh1", domain.HoldSubmitted, storage.HoldUpdate{TxHash: "0xtx"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	emitted := true
	if _, err := store.UpdateStatus(ctx, "0xh1", domain.HoldConfirmed, storage.HoldUpdate{BlockNumber: 7, SnapshotEmitted: &emitted}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	after, _ := store.GetByID(ctx, "0xh1")
	if after.PriceSnapshot.EthUsdPrice != before.PriceSnapshot.EthUsdPrice ||
		after.PriceSnapshot.PriceDecimals != before.PriceSnapshot.PriceDecimals ||
		after.PriceSnapshot.PriceTs != before.PriceSnapshot.PriceTs {
		t.Errorf("price snapshot changed across confirmation: before=%+v after=%+v",
			before.PriceSnapshot, after.PriceSnapshot)
	}
}

func TestHoldStore_AttachTransfer(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := store.UpdateStatus(ctx, "0xh1", domain.HoldSubmitted, storage.HoldUpdate{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateStatus(ctx, "0xh1", domain.HoldConfirmed, storage.HoldUpdate{}); err != nil {
		t.Fatal(err)
	}

	// Annotation is allowed on a terminal hold.
	if err := store.AttachTransfer(ctx, "0xh1", "mint-send_1_abc"); err != nil {
		t.Fatalf("AttachTransfer failed: %v", err)
	}
	h, _ := store.GetByID(ctx, "0xh1")
	if h.TransferID != "mint-send_1_abc" {
		t.Errorf("TransferID = %q", h.TransferID)
	}
}

func TestHoldStore_ListOrder(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	ids := []string{"0xc", "0xa", "0xb"}
	for _, id := range ids {
		if err := store.InsertIfAbsent(ctx, newHold(id, "")); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	holds, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(holds) != 3 {
		t.Fatalf("expected 3 holds, got %d", len(holds))
	}
	for i, id := range ids {
		if holds[i].HoldID != id {
			t.Errorf("holds[%d] = %s, want %s (insertion order)", i, holds[i].HoldID, id)
		}
	}
}

func TestHoldStore_ConcurrentSameKey(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var inserted atomic.Int64

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h := newHold(string(rune('a'+n%26))+"-hold", "shared-key")
			h.HoldID = h.HoldID + string(rune('0'+n/26))
			if err := store.InsertIfAbsent(ctx, h); err == nil {
				inserted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := inserted.Load(); got != 1 {
		t.Errorf("exactly one insert must win for a shared idempotency key, got %d", got)
	}
}

func TestHoldStore_CopyOnRead(t *testing.T) {
	store := NewHoldStore()
	ctx := context.Background()

	if err := store.InsertIfAbsent(ctx, newHold("0xh1", "")); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetByID(ctx, "0xh1")
	got.PriceSnapshot.EthUsdPrice = 1

	again, _ := store.GetByID(ctx, "0xh1")
	if again.PriceSnapshot.EthUsdPrice != 2500 {
		t.Error("store handed out a shared PriceSnapshot pointer")
	}
}
