package domain

// TransferStatus is the terminal state of a recorded transfer.
type TransferStatus string

const (
	TransferCompleted TransferStatus = "COMPLETED"
	TransferFailed    TransferStatus = "FAILED"
)

// OperationType distinguishes how a transfer originated.
type OperationType string

const (
	OpMintAndSend  OperationType = "MINT_AND_SEND"
	OpUsdtTransfer OperationType = "USDT_TRANSFER"
)

// CustodyAccount is free-text provenance for where a transfer was
// initiated from.
type CustodyAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// TokenInfo identifies the token contract a transfer moved.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Contract string `json:"contract"`
	Decimals int    `json:"decimals"`
}

// Transfer records a token movement for audit, whether it originated
// from a mint-and-send or a raw send. Records are append-only.
type Transfer struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"` // always "send"
	Amount         float64         `json:"amount"`
	ToAddress      string          `json:"toAddress"`
	FromWallet     string          `json:"fromWallet,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	TxHash         string          `json:"txHash"`
	ExplorerURL    string          `json:"explorerUrl"`
	Status         TransferStatus  `json:"status"`
	Timestamp      int64           `json:"timestamp"` // Unix ms
	BlockNumber    uint64          `json:"blockNumber,omitempty"`
	GasUsed        uint64          `json:"gasUsed,omitempty"`
	MintHoldID     string          `json:"mintHoldId,omitempty"`
	OperationType  OperationType   `json:"operationType,omitempty"`
	PriceSnapshot  *PriceSnapshot  `json:"priceSnapshot,omitempty"`
	CustodyAccount *CustodyAccount `json:"custodyAccount,omitempty"`
	Token          *TokenInfo      `json:"token,omitempty"`
}

// Clone returns a deep copy of the transfer.
func (t *Transfer) Clone() *Transfer {
	if t == nil {
		return nil
	}
	c := *t
	if t.PriceSnapshot != nil {
		snap := *t.PriceSnapshot
		c.PriceSnapshot = &snap
	}
	if t.CustodyAccount != nil {
		ca := *t.CustodyAccount
		c.CustodyAccount = &ca
	}
	if t.Token != nil {
		tok := *t.Token
		c.Token = &tok
	}
	return &c
}
