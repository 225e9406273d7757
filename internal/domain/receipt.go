package domain

// Identifier types for ISO receipt parties.
const (
	IdentifierWallet  = "WALLET"
	IdentifierAccount = "ACCOUNT"
)

// ISO receipt settlement statuses.
const (
	ReceiptPending = "PENDING"
	ReceiptSettled = "SETTLED"
)

// IsoReceiptParty identifies the debtor or creditor of a settlement.
type IsoReceiptParty struct {
	Name           string `json:"name"`
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifierType"` // WALLET | ACCOUNT
}

// IsoReceiptAmount is the instructed amount in its wire precision.
type IsoReceiptAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Decimals int     `json:"decimals"`
}

// IsoReceipt is an ISO 20022-shaped settlement receipt attached to a
// confirmed hold for downstream reconciliation. The core treats it as
// opaque beyond attaching it once.
type IsoReceipt struct {
	MessageID         string           `json:"messageId"`
	CreationDateTime  string           `json:"creationDateTime"` // RFC 3339
	TransactionID     string           `json:"transactionId"`
	InstructionID     string           `json:"instructionId"` // holdId truncated to 35 chars
	EndToEndID        string           `json:"endToEndId"`
	Debtor            IsoReceiptParty  `json:"debtor"`
	Creditor          IsoReceiptParty  `json:"creditor"`
	InstructedAmount  IsoReceiptAmount `json:"instructedAmount"`
	SettlementMethod  string           `json:"settlementMethod"` // BLOCKCHAIN
	SettlementChain   string           `json:"settlementChain"`  // ETHEREUM
	SettlementChainID uint64           `json:"settlementChainId"`
	HoldID            string           `json:"holdId"`
	TxHash            string           `json:"txHash,omitempty"`
	BlockNumber       uint64           `json:"blockNumber,omitempty"`
	Status            string           `json:"status"` // PENDING | SETTLED
	Signature         string           `json:"signature,omitempty"`
	SignedBy          string           `json:"signedBy,omitempty"`
	SignedAt          string           `json:"signedAt,omitempty"`
}
