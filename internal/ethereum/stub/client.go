// Package stub provides a scriptable in-memory ethereum.Client for tests.
package stub

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"ethusd-bridge/internal/ethereum"
)

// Client implements ethereum.Client against in-memory state. Read calls
// are scripted per contract and selector; sends auto-mine a receipt with
// the configured status and logs.
type Client struct {
	mu sync.Mutex

	Chain    *big.Int
	Head     uint64
	Balances map[string]*big.Int
	Nonces   map[string]uint64
	Gas      *big.Int

	// CallResults scripts eth_call responses, keyed by
	// lowercase(to) + ":" + hex(selector).
	CallResults map[string][]byte
	// CallErrs scripts eth_call failures with the same keys.
	CallErrs map[string]error

	// SendErr makes the next SendRawTransaction fail.
	SendErr error
	// MineStatus is the receipt status for auto-mined transactions.
	MineStatus uint64
	// MineLogs are attached to every auto-mined receipt.
	MineLogs []ethereum.Log
	// ReceiptDelay withholds receipts for the first N polls per hash.
	ReceiptDelay int

	receipts    map[string]*ethereum.Receipt
	pendingPoll map[string]int
	submitCount int
}

// NewClient creates a stub client with chain id 1 and an empty state.
func NewClient() *Client {
	return &Client{
		Chain:       big.NewInt(1),
		Head:        100,
		Balances:    make(map[string]*big.Int),
		Nonces:      make(map[string]uint64),
		Gas:         big.NewInt(1_000_000_000),
		CallResults: make(map[string][]byte),
		CallErrs:    make(map[string]error),
		MineStatus:  1,
		receipts:    make(map[string]*ethereum.Receipt),
		pendingPoll: make(map[string]int),
	}
}

// Compile-time interface check.
var _ ethereum.Client = (*Client)(nil)

// CallKey builds the CallResults key for a contract and call data.
func CallKey(to string, data []byte) string {
	sel := data
	if len(sel) > 4 {
		sel = sel[:4]
	}
	return lower(to) + ":" + hex.EncodeToString(sel)
}

// SubmitCount reports how many raw transactions were broadcast.
func (c *Client) SubmitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCount
}

// ChainID retrieves the configured chain id.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	return c.Chain, nil
}

// BlockNumber retrieves the configured head block.
func (c *Client) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Head, nil
}

// Balance retrieves the scripted balance for an address (zero if unset).
func (c *Client) Balance(_ context.Context, address string) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.Balances[lower(address)]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// SetBalance scripts the balance of an address.
func (c *Client) SetBalance(address string, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[lower(address)] = new(big.Int).Set(wei)
}

// NonceAt retrieves the next nonce for an address.
func (c *Client) NonceAt(_ context.Context, address string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonces[lower(address)], nil
}

// GasPrice retrieves the configured gas price.
func (c *Client) GasPrice(_ context.Context) (*big.Int, error) {
	return c.Gas, nil
}

// EstimateGas returns a flat estimate.
func (c *Client) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

// Call returns the scripted result for the contract and selector.
func (c *Client) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := CallKey(msg.To, msg.Data)
	if err, ok := c.CallErrs[key]; ok {
		return nil, err
	}
	if out, ok := c.CallResults[key]; ok {
		return out, nil
	}
	return nil, fmt.Errorf("unscripted call %s", key)
}

// SendRawTransaction accepts a raw transaction, bumps the sender-less
// submit counter and auto-mines a receipt for its hash.
func (c *Client) SendRawTransaction(_ context.Context, raw []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		err := c.SendErr
		c.SendErr = nil
		return "", err
	}

	c.submitCount++
	txHash := "0x" + hex.EncodeToString(ethereum.Keccak256(raw))
	c.Head++
	c.receipts[txHash] = &ethereum.Receipt{
		TxHash:      txHash,
		Status:      c.MineStatus,
		BlockNumber: c.Head,
		GasUsed:     90_000,
		Logs:        c.MineLogs,
	}
	if c.ReceiptDelay > 0 {
		c.pendingPoll[txHash] = c.ReceiptDelay
	}
	return txHash, nil
}

// TransactionReceipt retrieves the auto-mined receipt, honoring
// ReceiptDelay.
func (c *Client) TransactionReceipt(_ context.Context, txHash string) (*ethereum.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remaining, ok := c.pendingPoll[txHash]; ok && remaining > 0 {
		c.pendingPoll[txHash] = remaining - 1
		return nil, ethereum.ErrReceiptNotFound
	}
	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.ErrReceiptNotFound
	}
	return receipt, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'A' && ch <= 'Z' {
			b[i] = ch + 32
		}
	}
	return string(b)
}
