package oracle

import (
	"context"
	"log"
	"math/big"
	"time"

	"ethusd-bridge/internal/domain"
)

// FallbackSource wraps a primary source and serves a configured default
// price when the primary fails. Mints keep flowing through feed outages;
// the snapshot's Source field records that the price is a fallback.
type FallbackSource struct {
	primary      Source
	defaultPrice float64
	decimals     int
	now          func() time.Time
}

// NewFallbackSource creates a fallback around primary.
func NewFallbackSource(primary Source, defaultPrice float64, decimals int) *FallbackSource {
	return &FallbackSource{
		primary:      primary,
		defaultPrice: defaultPrice,
		decimals:     decimals,
		now:          time.Now,
	}
}

// Compile-time interface check.
var _ Source = (*FallbackSource)(nil)

// Snapshot tries the primary source and falls back to the default price.
func (s *FallbackSource) Snapshot(ctx context.Context) (*domain.PriceSnapshot, error) {
	snap, err := s.primary.Snapshot(ctx)
	if err == nil {
		return snap, nil
	}
	log.Printf("[oracle] feed read failed, using fallback price %.2f: %v", s.defaultPrice, err)

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.decimals)), nil))
	raw, _ := new(big.Float).Mul(big.NewFloat(s.defaultPrice), scale).Int(nil)

	return &domain.PriceSnapshot{
		EthUsdPrice:   s.defaultPrice,
		PriceRaw:      raw.String(),
		PriceDecimals: s.decimals,
		PriceTs:       s.now().Unix(),
		Source:        "FALLBACK",
	}, nil
}

// FixedSource serves one static snapshot. Intended for tests and local
// development without a node.
type FixedSource struct {
	Snap domain.PriceSnapshot
	Err  error
}

// Compile-time interface check.
var _ Source = (*FixedSource)(nil)

// Snapshot returns a copy of the fixed snapshot.
func (s *FixedSource) Snapshot(_ context.Context) (*domain.PriceSnapshot, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	snap := s.Snap
	return &snap, nil
}
