package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

// HoldStore implements storage.HoldStore using PostgreSQL. Uniqueness of
// hold_id and idempotency_key is enforced by the schema, which makes
// InsertIfAbsent atomic across processes; transition legality is enforced
// by a guarded UPDATE so that two racing writers cannot both move the
// same hold.
type HoldStore struct {
	pool *Pool
}

// NewHoldStore creates a new HoldStore.
func NewHoldStore(pool *Pool) *HoldStore {
	return &HoldStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HoldStore = (*HoldStore)(nil)

const holdColumns = `
	hold_id, ref, status, amount_usd, beneficiary, debtor_name, debtor_id,
	idempotency_key, eth_usd_price, price_raw, price_decimals, price_ts,
	emitted_on_chain, price_source, tx_hash, explorer_url, block_number,
	gas_used, iso_receipt, error_code, error_message, transfer_id,
	created_at, updated_at
`

// InsertIfAbsent adds a new hold. Returns ErrDuplicateKey if the hold_id
// or a non-empty idempotency_key already exists.
func (s *HoldStore) InsertIfAbsent(ctx context.Context, h *domain.Hold) error {
	if h == nil || h.HoldID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO holds (
			hold_id, ref, status, amount_usd, beneficiary, debtor_name, debtor_id,
			idempotency_key, eth_usd_price, price_raw, price_decimals, price_ts,
			emitted_on_chain, price_source, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var (
		ethUsdPrice   float64
		priceRaw      string
		priceDecimals int
		priceTs       int64
		emitted       bool
		priceSource   string
	)
	if h.PriceSnapshot != nil {
		ethUsdPrice = h.PriceSnapshot.EthUsdPrice
		priceRaw = h.PriceSnapshot.PriceRaw
		priceDecimals = h.PriceSnapshot.PriceDecimals
		priceTs = h.PriceSnapshot.PriceTs
		emitted = h.PriceSnapshot.EmittedOnChain
		priceSource = h.PriceSnapshot.Source
	}

	_, err := s.pool.Exec(ctx, query,
		h.HoldID,
		h.Ref,
		string(h.Status),
		h.AmountUsd,
		h.Beneficiary,
		h.DebtorName,
		h.DebtorID,
		nullableString(h.IdempotencyKey),
		ethUsdPrice,
		priceRaw,
		priceDecimals,
		priceTs,
		emitted,
		priceSource,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

// GetByID retrieves a hold by its id. Returns ErrNotFound if not exists.
func (s *HoldStore) GetByID(ctx context.Context, holdID string) (*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE hold_id = $1`

	row := s.pool.QueryRow(ctx, query, holdID)
	h, err := scanHold(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get hold by id: %w", err)
	}
	return h, nil
}

// GetByIdempotencyKey retrieves the hold bound to an idempotency key.
func (s *HoldStore) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Hold, error) {
	if key == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `SELECT ` + holdColumns + ` FROM holds WHERE idempotency_key = $1`

	row := s.pool.QueryRow(ctx, query, key)
	h, err := scanHold(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get hold by idempotency key: %w", err)
	}
	return h, nil
}

// UpdateStatus moves a hold to the next status, applying upd. The UPDATE
// is guarded on the set of statuses allowed to precede next, so a
// concurrent transition loses cleanly with ErrInvalidTransition.
func (s *HoldStore) UpdateStatus(ctx context.Context, holdID string, next domain.HoldStatus, upd storage.HoldUpdate) (*domain.Hold, error) {
	allowed := allowedPredecessors(next)
	if len(allowed) == 0 {
		return nil, storage.ErrInvalidTransition
	}

	var receiptJSON []byte
	if upd.IsoReceipt != nil {
		b, err := json.Marshal(upd.IsoReceipt)
		if err != nil {
			return nil, fmt.Errorf("marshal iso receipt: %w", err)
		}
		receiptJSON = b
	}

	query := `
		UPDATE holds SET
			status = $2,
			tx_hash = CASE WHEN $3::text <> '' THEN $3 ELSE tx_hash END,
			explorer_url = CASE WHEN $4::text <> '' THEN $4 ELSE explorer_url END,
			block_number = CASE WHEN $5::bigint <> 0 THEN $5 ELSE block_number END,
			gas_used = CASE WHEN $6::bigint <> 0 THEN $6 ELSE gas_used END,
			iso_receipt = COALESCE($7::jsonb, iso_receipt),
			emitted_on_chain = COALESCE($8::boolean, emitted_on_chain),
			error_code = CASE WHEN $9::text <> '' THEN $9 ELSE error_code END,
			error_message = CASE WHEN $10::text <> '' THEN $10 ELSE error_message END,
			updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE hold_id = $1 AND status = ANY($11)
		RETURNING ` + holdColumns

	row := s.pool.QueryRow(ctx, query,
		holdID,
		string(next),
		upd.TxHash,
		upd.ExplorerURL,
		int64(upd.BlockNumber),
		int64(upd.GasUsed),
		receiptJSON,
		upd.SnapshotEmitted,
		upd.ErrorCode,
		upd.ErrorMessage,
		allowed,
	)
	h, err := scanHold(row)
	if err != nil {
		if isNotFoundError(err) {
			// Distinguish a missing hold from a hold in the wrong state.
			if _, getErr := s.GetByID(ctx, holdID); getErr != nil {
				return nil, getErr
			}
			return nil, storage.ErrInvalidTransition
		}
		return nil, fmt.Errorf("update hold status: %w", err)
	}
	return h, nil
}

// AttachTransfer annotates a hold with the transfer it produced.
func (s *HoldStore) AttachTransfer(ctx context.Context, holdID, transferID string) error {
	query := `
		UPDATE holds SET
			transfer_id = $2,
			updated_at = (extract(epoch from now()) * 1000)::bigint
		WHERE hold_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, holdID, transferID)
	if err != nil {
		return fmt.Errorf("attach transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves all holds in insertion order.
func (s *HoldStore) List(ctx context.Context) ([]*domain.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	var holds []*domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold row: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hold rows: %w", err)
	}
	return holds, nil
}

// allowedPredecessors lists the statuses from which next is reachable.
func allowedPredecessors(next domain.HoldStatus) []string {
	all := []domain.HoldStatus{
		domain.HoldPending,
		domain.HoldSubmitted,
		domain.HoldConfirmed,
		domain.HoldFailed,
	}
	var allowed []string
	for _, from := range all {
		if domain.CanTransition(from, next) {
			allowed = append(allowed, string(from))
		}
	}
	return allowed
}

// scanHold scans a single row into a Hold.
func scanHold(row pgx.Row) (*domain.Hold, error) {
	var (
		h           domain.Hold
		statusStr   string
		idemKey     *string
		snap        domain.PriceSnapshot
		blockNumber int64
		gasUsed     int64
		receiptJSON []byte
	)

	err := row.Scan(
		&h.HoldID,
		&h.Ref,
		&statusStr,
		&h.AmountUsd,
		&h.Beneficiary,
		&h.DebtorName,
		&h.DebtorID,
		&idemKey,
		&snap.EthUsdPrice,
		&snap.PriceRaw,
		&snap.PriceDecimals,
		&snap.PriceTs,
		&snap.EmittedOnChain,
		&snap.Source,
		&h.TxHash,
		&h.ExplorerURL,
		&blockNumber,
		&gasUsed,
		&receiptJSON,
		&h.ErrorCode,
		&h.ErrorMessage,
		&h.TransferID,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.Status = domain.HoldStatus(statusStr)
	if idemKey != nil {
		h.IdempotencyKey = *idemKey
	}
	h.PriceSnapshot = &snap
	h.BlockNumber = uint64(blockNumber)
	h.GasUsed = uint64(gasUsed)
	if len(receiptJSON) > 0 {
		var rcpt domain.IsoReceipt
		if err := json.Unmarshal(receiptJSON, &rcpt); err != nil {
			return nil, fmt.Errorf("unmarshal iso receipt: %w", err)
		}
		h.IsoReceipt = &rcpt
	}
	return &h, nil
}
