// Package oracle reads the ETH/USD price feed that every mint snapshots.
package oracle

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
)

// DefaultMaxAge is the staleness threshold past which a feed read is
// logged as suspect. The read is still used; price freshness is a
// monitoring concern, not a hard failure.
const DefaultMaxAge = time.Hour

// Source produces a price snapshot for the ETH/USD pair.
type Source interface {
	// Snapshot reads the current price. The returned snapshot carries
	// both the float price and the raw integer feed answer.
	Snapshot(ctx context.Context) (*domain.PriceSnapshot, error)
}

// AggregatorV3 selectors.
var (
	selLatestRoundData = ethereum.Selector("latestRoundData()")
	selFeedDecimals    = ethereum.Selector("decimals()")
)

// ChainlinkSource reads a Chainlink AggregatorV3 feed.
type ChainlinkSource struct {
	client   ethereum.Client
	feed     string
	maxAge   time.Duration
	decimals uint8
	now      func() time.Time
}

// NewChainlinkSource creates a source for the aggregator at feed.
// decimals is read from the feed contract once at startup.
func NewChainlinkSource(ctx context.Context, client ethereum.Client, feed string) (*ChainlinkSource, error) {
	decimals, err := feedDecimals(ctx, client, feed)
	if err != nil {
		return nil, fmt.Errorf("read feed decimals: %w", err)
	}
	return &ChainlinkSource{
		client:   client,
		feed:     feed,
		maxAge:   DefaultMaxAge,
		decimals: decimals,
		now:      time.Now,
	}, nil
}

// Compile-time interface check.
var _ Source = (*ChainlinkSource)(nil)

// Snapshot reads latestRoundData and validates the round before
// converting it to a snapshot.
func (s *ChainlinkSource) Snapshot(ctx context.Context) (*domain.PriceSnapshot, error) {
	out, err := s.client.Call(ctx, ethereum.CallMsg{To: s.feed, Data: selLatestRoundData})
	if err != nil {
		return nil, fmt.Errorf("call latestRoundData: %w", err)
	}
	// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt, uint80 answeredInRound)
	if len(out) < 5*32 {
		return nil, fmt.Errorf("latestRoundData returned %d bytes, want %d", len(out), 5*32)
	}

	roundID := new(big.Int).SetBytes(out[0:32])
	answer := decodeInt256(out[32:64])
	updatedAt := new(big.Int).SetBytes(out[96:128])
	answeredInRound := new(big.Int).SetBytes(out[128:160])

	if answer.Sign() <= 0 {
		return nil, fmt.Errorf("feed answer %s is not positive", answer)
	}
	if updatedAt.Sign() == 0 {
		return nil, fmt.Errorf("feed round is not complete")
	}
	if answeredInRound.Cmp(roundID) < 0 {
		return nil, fmt.Errorf("feed answer is stale: answered in round %s < %s", answeredInRound, roundID)
	}

	priceTs := updatedAt.Int64()
	if age := s.now().Unix() - priceTs; age > int64(s.maxAge.Seconds()) {
		log.Printf("[oracle] WARNING: feed %s last updated %ds ago", s.feed, age)
	}

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(answer),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.decimals)), nil)),
	).Float64()

	return &domain.PriceSnapshot{
		EthUsdPrice:   price,
		PriceRaw:      answer.String(),
		PriceDecimals: int(s.decimals),
		PriceTs:       priceTs,
		Source:        "CHAINLINK",
	}, nil
}

// feedDecimals reads decimals() from the aggregator contract.
func feedDecimals(ctx context.Context, client ethereum.Client, feed string) (uint8, error) {
	out, err := client.Call(ctx, ethereum.CallMsg{To: feed, Data: selFeedDecimals})
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("decimals returned %d bytes, want 32", len(out))
	}
	return uint8(out[31]), nil
}

// decodeInt256 reads a 32-byte ABI word as a signed two's complement
// integer.
func decodeInt256(word []byte) *big.Int {
	v := new(big.Int).SetBytes(word[:32])
	if word[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v.Sub(v, mod)
	}
	return v
}
