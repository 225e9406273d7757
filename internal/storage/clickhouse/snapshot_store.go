package clickhouse

import (
	"context"
	"fmt"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/storage"
)

// SnapshotStore implements storage.SnapshotArchive using ClickHouse.
// Every oracle read lands here as one append-only row; the table is an
// audit trail, so there is no uniqueness to enforce.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotArchive = (*SnapshotStore)(nil)

// Archive appends one oracle read.
func (s *SnapshotStore) Archive(ctx context.Context, rec *domain.SnapshotRecord) error {
	if rec == nil || rec.Pair == "" {
		return storage.ErrInvalidInput
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (
			pair, price, price_raw, price_decimals, price_ts, source, hold_id, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		rec.Pair,
		rec.Price,
		rec.PriceRaw,
		uint8(rec.PriceDecimals),
		uint64(rec.PriceTs),
		rec.Source,
		rec.HoldID,
		uint64(rec.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPair retrieves archived reads for a pair, ordered by recorded_at ASC.
func (s *SnapshotStore) GetByPair(ctx context.Context, pair string) ([]*domain.SnapshotRecord, error) {
	query := `
		SELECT pair, price, price_raw, price_decimals, price_ts, source, hold_id, recorded_at
		FROM price_snapshots
		WHERE pair = ?
		ORDER BY recorded_at ASC
	`

	rows, err := s.conn.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by pair: %w", err)
	}
	defer rows.Close()

	var records []*domain.SnapshotRecord
	for rows.Next() {
		var (
			rec           domain.SnapshotRecord
			priceDecimals uint8
			priceTs       uint64
			recordedAt    uint64
		)
		err := rows.Scan(
			&rec.Pair,
			&rec.Price,
			&rec.PriceRaw,
			&priceDecimals,
			&priceTs,
			&rec.Source,
			&rec.HoldID,
			&recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		rec.PriceDecimals = int(priceDecimals)
		rec.PriceTs = int64(priceTs)
		rec.RecordedAt = int64(recordedAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return records, nil
}
