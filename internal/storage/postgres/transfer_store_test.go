package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

func testTransfer(id string) *domain.Transfer {
	return &domain.Transfer{
		ID:          id,
		Type:        "send",
		Amount:      75.25,
		ToAddress:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		FromWallet:  "custody",
		Memo:        "settlement",
		TxHash:      "0xtx-" + id,
		ExplorerURL: "https://etherscan.io/tx/0xtx-" + id,
		Status:      domain.TransferCompleted,
		Timestamp:   1700000000000,
		BlockNumber: 42,
		GasUsed:     52000,
	}
}

func TestTransferStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(pool)
	ctx := context.Background()

	tr := testTransfer("send-001")
	tr.MintHoldID = "0xhold"
	tr.OperationType = domain.OpMintAndSend
	tr.PriceSnapshot = &domain.PriceSnapshot{
		EthUsdPrice:   2500,
		PriceDecimals: 8,
		PriceTs:       1700000000,
		Source:        "CHAINLINK",
	}
	tr.CustodyAccount = &domain.CustodyAccount{ID: "custody-001", Name: "DAES Custody"}
	tr.Token = &domain.TokenInfo{Symbol: "DUSD", Contract: "0x1111111111111111111111111111111111111111", Decimals: 6}

	require.NoError(t, store.Insert(ctx, tr))

	retrieved, err := store.GetByID(ctx, "send-001")
	require.NoError(t, err)

	assert.Equal(t, tr.ID, retrieved.ID)
	assert.Equal(t, tr.Amount, retrieved.Amount)
	assert.Equal(t, tr.ToAddress, retrieved.ToAddress)
	assert.Equal(t, domain.TransferCompleted, retrieved.Status)
	assert.Equal(t, "0xhold", retrieved.MintHoldID)
	assert.Equal(t, domain.OpMintAndSend, retrieved.OperationType)
	require.NotNil(t, retrieved.PriceSnapshot)
	assert.Equal(t, float64(2500), retrieved.PriceSnapshot.EthUsdPrice)
	require.NotNil(t, retrieved.CustodyAccount)
	assert.Equal(t, "DAES Custody", retrieved.CustodyAccount.Name)
	require.NotNil(t, retrieved.Token)
	assert.Equal(t, 6, retrieved.Token.Decimals)
}

func TestTransferStore_NullOptionalFields(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testTransfer("send-bare")))

	retrieved, err := store.GetByID(ctx, "send-bare")
	require.NoError(t, err)

	assert.Nil(t, retrieved.PriceSnapshot)
	assert.Nil(t, retrieved.CustodyAccount)
	assert.Nil(t, retrieved.Token)
	assert.Empty(t, retrieved.MintHoldID)
}

func TestTransferStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testTransfer("send-dup")))

	err := store.Insert(ctx, testTransfer("send-dup"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTransferStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(pool)

	_, err := store.GetByID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransferStore_ListInsertionOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTransferStore(pool)
	ctx := context.Background()

	ids := []string{"send-3", "send-1", "send-2"}
	for _, id := range ids {
		require.NoError(t, store.Insert(ctx, testTransfer(id)))
	}

	transfers, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, transfers, 3)
	for i, id := range ids {
		assert.Equal(t, id, transfers[i].ID)
	}
}
