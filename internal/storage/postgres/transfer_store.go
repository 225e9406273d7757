package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

// TransferStore implements storage.TransferStore using PostgreSQL.
type TransferStore struct {
	pool *Pool
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(pool *Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

const transferColumns = `
	transfer_id, transfer_type, amount, to_address, from_wallet, memo,
	tx_hash, explorer_url, status, ts, block_number, gas_used,
	mint_hold_id, operation_type, price_snapshot, custody_account, token_info
`

// Insert adds a new transfer. Returns ErrDuplicateKey if id exists.
func (s *TransferStore) Insert(ctx context.Context, t *domain.Transfer) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	snapJSON, err := marshalOrNil(t.PriceSnapshot)
	if err != nil {
		return fmt.Errorf("marshal price snapshot: %w", err)
	}
	custodyJSON, err := marshalOrNil(t.CustodyAccount)
	if err != nil {
		return fmt.Errorf("marshal custody account: %w", err)
	}
	tokenJSON, err := marshalOrNil(t.Token)
	if err != nil {
		return fmt.Errorf("marshal token info: %w", err)
	}

	query := `
		INSERT INTO transfers (
			transfer_id, transfer_type, amount, to_address, from_wallet, memo,
			tx_hash, explorer_url, status, ts, block_number, gas_used,
			mint_hold_id, operation_type, price_snapshot, custody_account, token_info
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = s.pool.Exec(ctx, query,
		t.ID,
		t.Type,
		t.Amount,
		t.ToAddress,
		t.FromWallet,
		t.Memo,
		t.TxHash,
		t.ExplorerURL,
		string(t.Status),
		t.Timestamp,
		int64(t.BlockNumber),
		int64(t.GasUsed),
		t.MintHoldID,
		string(t.OperationType),
		snapJSON,
		custodyJSON,
		tokenJSON,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// GetByID retrieves a transfer by its id. Returns ErrNotFound if not exists.
func (s *TransferStore) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE transfer_id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	t, err := scanTransfer(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transfer by id: %w", err)
	}
	return t, nil
}

// List retrieves all transfers in insertion order.
func (s *TransferStore) List(ctx context.Context) ([]*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer row: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return transfers, nil
}

// marshalOrNil marshals v to JSON, passing typed nils through as SQL NULL.
func marshalOrNil(v any) ([]byte, error) {
	switch x := v.(type) {
	case *domain.PriceSnapshot:
		if x == nil {
			return nil, nil
		}
	case *domain.CustodyAccount:
		if x == nil {
			return nil, nil
		}
	case *domain.TokenInfo:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// scanTransfer scans a single row into a Transfer.
func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var (
		t           domain.Transfer
		statusStr   string
		opTypeStr   string
		blockNumber int64
		gasUsed     int64
		snapJSON    []byte
		custodyJSON []byte
		tokenJSON   []byte
	)

	err := row.Scan(
		&t.ID,
		&t.Type,
		&t.Amount,
		&t.ToAddress,
		&t.FromWallet,
		&t.Memo,
		&t.TxHash,
		&t.ExplorerURL,
		&statusStr,
		&t.Timestamp,
		&blockNumber,
		&gasUsed,
		&t.MintHoldID,
		&opTypeStr,
		&snapJSON,
		&custodyJSON,
		&tokenJSON,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TransferStatus(statusStr)
	t.OperationType = domain.OperationType(opTypeStr)
	t.BlockNumber = uint64(blockNumber)
	t.GasUsed = uint64(gasUsed)
	if len(snapJSON) > 0 {
		var snap domain.PriceSnapshot
		if err := json.Unmarshal(snapJSON, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal price snapshot: %w", err)
		}
		t.PriceSnapshot = &snap
	}
	if len(custodyJSON) > 0 {
		var acct domain.CustodyAccount
		if err := json.Unmarshal(custodyJSON, &acct); err != nil {
			return nil, fmt.Errorf("unmarshal custody account: %w", err)
		}
		t.CustodyAccount = &acct
	}
	if len(tokenJSON) > 0 {
		var tok domain.TokenInfo
		if err := json.Unmarshal(tokenJSON, &tok); err != nil {
			return nil, fmt.Errorf("unmarshal token info: %w", err)
		}
		t.Token = &tok
	}
	return &t, nil
}
