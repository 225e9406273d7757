package ethereum

import (
	"context"
	"fmt"
	"math/big"
)

// ERC-20 function selectors.
var (
	selDecimals  = Selector("decimals()")
	selBalanceOf = Selector("balanceOf(address)")
	selTransfer  = Selector("transfer(address,uint256)")
)

// ERC20 is a minimal binding for token balance reads and transfers.
type ERC20 struct {
	client   Client
	contract string
}

// NewERC20 creates a binding for the token at contract.
func NewERC20(client Client, contract string) *ERC20 {
	return &ERC20{client: client, contract: contract}
}

// Contract returns the token contract address.
func (t *ERC20) Contract() string {
	return t.contract
}

// Decimals reads the token's decimal count.
func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.client.Call(ctx, CallMsg{To: t.contract, Data: selDecimals})
	if err != nil {
		return 0, fmt.Errorf("call decimals: %w", err)
	}
	v, err := decodeUint256(out)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	return uint8(v.Uint64()), nil
}

// BalanceOf reads the token balance of owner in base units.
func (t *ERC20) BalanceOf(ctx context.Context, owner string) (*big.Int, error) {
	ownerWord, err := encodeAddress(owner)
	if err != nil {
		return nil, err
	}
	data := append(append([]byte{}, selBalanceOf...), ownerWord...)

	out, err := t.client.Call(ctx, CallMsg{To: t.contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}
	balance, err := decodeUint256(out)
	if err != nil {
		return nil, fmt.Errorf("decode balanceOf: %w", err)
	}
	return balance, nil
}

// Transfer sends amount base units to the recipient, returning the
// transaction hash.
func (t *ERC20) Transfer(ctx context.Context, tr *Transactor, to string, amount *big.Int) (string, error) {
	toWord, err := encodeAddress(to)
	if err != nil {
		return "", err
	}
	data := append(append([]byte{}, selTransfer...), toWord...)
	data = append(data, encodeUint256(amount)...)

	return tr.Send(ctx, t.contract, nil, data)
}
