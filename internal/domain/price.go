package domain

// PriceSnapshot captures the reference ETH/USD price attached to a hold
// at submission time. The price fields are immutable after capture;
// EmittedOnChain is resolved once, when the mint receipt is inspected.
type PriceSnapshot struct {
	EthUsdPrice    float64 `json:"ethUsdPrice"`
	PriceRaw       string  `json:"priceRaw,omitempty"` // int256 scaled value, decimal string
	PriceDecimals  int     `json:"priceDecimals"`
	PriceTs        int64   `json:"priceTs"` // Unix seconds
	EmittedOnChain bool    `json:"emittedOnChain"`
	Source         string  `json:"source,omitempty"`
}

// SnapshotRecord is one archived oracle read, kept for audit independently
// of the hold it was attached to.
type SnapshotRecord struct {
	Pair          string  // e.g. "ETH/USD"
	Price         float64
	PriceRaw      string
	PriceDecimals int
	PriceTs       int64  // oracle updatedAt, Unix seconds
	Source        string // "Chainlink ETH/USD" or "FALLBACK"
	HoldID        string // hold the read was captured for, if any
	RecordedAt    int64  // Unix ms
}
