package ethereum

import (
	"context"
	"fmt"
	"math/big"
)

// Transactor builds, signs and broadcasts transactions from the custody
// wallet. Nonce and gas parameters are fetched from the node per
// transaction.
type Transactor struct {
	client Client
	wallet *Wallet
}

// NewTransactor creates a Transactor for the given wallet.
func NewTransactor(client Client, wallet *Wallet) *Transactor {
	return &Transactor{client: client, wallet: wallet}
}

// Wallet returns the signing wallet.
func (t *Transactor) Wallet() *Wallet {
	return t.wallet
}

// Send signs and broadcasts a transaction to addr carrying value and
// data, returning the transaction hash.
func (t *Transactor) Send(ctx context.Context, to string, value *big.Int, data []byte) (string, error) {
	chainID, err := t.client.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch chain id: %w", err)
	}

	nonce, err := t.client.NonceAt(ctx, t.wallet.Address())
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}

	gasPrice, err := t.client.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}

	gas, err := t.client.EstimateGas(ctx, CallMsg{
		From:  t.wallet.Address(),
		To:    to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	// Headroom for state drift between estimation and inclusion.
	gas = gas + gas/5

	raw, txHash, err := SignTx(&LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    value,
		Data:     data,
	}, chainID, t.wallet)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sent, err := t.client.SendRawTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	if sent != "" {
		return sent, nil
	}
	return txHash, nil
}
