package domain

// HoldStatus is the lifecycle state of a mint hold.
type HoldStatus string

const (
	HoldPending   HoldStatus = "PENDING"
	HoldSubmitted HoldStatus = "SUBMITTED"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldFailed    HoldStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s HoldStatus) Terminal() bool {
	return s == HoldConfirmed || s == HoldFailed
}

// CanTransition reports whether a hold may move from one status to another.
// Allowed: PENDING -> SUBMITTED | FAILED, SUBMITTED -> CONFIRMED | FAILED.
func CanTransition(from, to HoldStatus) bool {
	switch from {
	case HoldPending:
		return to == HoldSubmitted || to == HoldFailed
	case HoldSubmitted:
		return to == HoldConfirmed || to == HoldFailed
	default:
		return false
	}
}

// Hold records one mint attempt and its outcome.
// Once the status is terminal the record is immutable except for
// ledger-level annotations (TransferID).
type Hold struct {
	HoldID         string         `json:"holdId"`
	Ref            string         `json:"ref"` // operator-facing reference the holdId is derived from
	Status         HoldStatus     `json:"status"`
	AmountUsd      float64        `json:"amountUsd"`
	Beneficiary    string         `json:"beneficiary"`
	DebtorName     string         `json:"debtorName,omitempty"`
	DebtorID       string         `json:"debtorId,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	PriceSnapshot  *PriceSnapshot `json:"priceSnapshot,omitempty"`
	TxHash         string         `json:"txHash,omitempty"`
	ExplorerURL    string         `json:"explorerUrl,omitempty"`
	BlockNumber    uint64         `json:"blockNumber,omitempty"`
	GasUsed        uint64         `json:"gasUsed,omitempty"`
	IsoReceipt     *IsoReceipt    `json:"isoReceipt,omitempty"`
	ErrorCode      string         `json:"errorCode,omitempty"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
	TransferID     string         `json:"transferId,omitempty"`
	CreatedAt      int64          `json:"createdAt"` // Unix ms
	UpdatedAt      int64          `json:"updatedAt"` // Unix ms
}

// Clone returns a deep copy so callers can hand out holds without
// exposing shared pointers.
func (h *Hold) Clone() *Hold {
	if h == nil {
		return nil
	}
	c := *h
	if h.PriceSnapshot != nil {
		snap := *h.PriceSnapshot
		c.PriceSnapshot = &snap
	}
	if h.IsoReceipt != nil {
		rcpt := *h.IsoReceipt
		c.IsoReceipt = &rcpt
	}
	return &c
}

// MintRequest is the route-layer input consumed to produce a Hold.
type MintRequest struct {
	AmountUsd      float64 `json:"amountUsd"`
	Beneficiary    string  `json:"beneficiary"`
	DebtorName     string  `json:"debtorName,omitempty"`
	DebtorID       string  `json:"debtorId,omitempty"`
	IdempotencyKey string  `json:"idempotencyKey,omitempty"`
}

// MintResult is the normalized success payload of a mint.
type MintResult struct {
	Success       bool           `json:"success"`
	HoldID        string         `json:"holdId,omitempty"`
	TxHash        string         `json:"txHash,omitempty"`
	ExplorerURL   string         `json:"explorerUrl,omitempty"`
	IsoReceipt    *IsoReceipt    `json:"isoReceipt,omitempty"`
	PriceSnapshot *PriceSnapshot `json:"priceSnapshot,omitempty"`
	EthUsdPrice   float64        `json:"ethUsdPrice,omitempty"`
	PriceDecimals int            `json:"priceDecimals,omitempty"`
	PriceTs       int64          `json:"priceTs,omitempty"`
	Idempotent    bool           `json:"idempotent,omitempty"`
}
