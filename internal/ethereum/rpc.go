package ethereum

import (
	"context"
	"errors"
	"math/big"
)

// ErrReceiptNotFound is returned while a transaction is still pending and
// the node has no receipt for it yet.
var ErrReceiptNotFound = errors.New("transaction receipt not found")

// Client defines the Ethereum JSON-RPC interface the bridge depends on.
type Client interface {
	// ChainID retrieves the chain id of the connected network.
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber retrieves the latest block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// Balance retrieves the wei balance of an address at the latest block.
	Balance(ctx context.Context, address string) (*big.Int, error)

	// NonceAt retrieves the pending-state transaction count of an address.
	NonceAt(ctx context.Context, address string) (uint64, error)

	// GasPrice retrieves the current gas price suggestion.
	GasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas estimates the gas needed for a call.
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)

	// Call executes a read-only contract call at the latest block.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)

	// SendRawTransaction broadcasts a signed transaction, returning its hash.
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)

	// TransactionReceipt retrieves the receipt of a mined transaction.
	// Returns ErrReceiptNotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// CallMsg describes a contract call or gas estimation request.
type CallMsg struct {
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// Receipt is the mined-transaction receipt subset the bridge uses.
type Receipt struct {
	TxHash      string
	Status      uint64 // 1 = success, 0 = reverted
	BlockNumber uint64
	GasUsed     uint64
	Logs        []Log
}

// Log is a contract event emitted by a mined transaction.
type Log struct {
	Address string
	Topics  []string
	Data    string
}
