package ethereum

import (
	"context"
	"fmt"
	"math/big"
)

// BridgeMinter function selectors.
var (
	selIsHoldUsed = Selector("isHoldUsed(bytes32)")
	selGetNonce   = Selector("getNonce(address)")
	selMintAuth   = Selector("mintWithAuthorization((bytes32,uint256,address,bytes32,bytes3,uint256,uint256,int256,uint8,uint64),bytes)")
)

// BridgeMinter binds the custodial minter contract. Mints go through
// mintWithAuthorization, which verifies an EIP-712 signature before
// releasing tokens.
type BridgeMinter struct {
	client   Client
	contract string
}

// NewBridgeMinter creates a binding for the minter at contract.
func NewBridgeMinter(client Client, contract string) *BridgeMinter {
	return &BridgeMinter{client: client, contract: contract}
}

// Contract returns the minter contract address.
func (m *BridgeMinter) Contract() string {
	return m.contract
}

// IsHoldUsed reports whether the contract has already consumed a hold id.
func (m *BridgeMinter) IsHoldUsed(ctx context.Context, holdID [32]byte) (bool, error) {
	data := append(append([]byte{}, selIsHoldUsed...), encodeBytes32(holdID)...)

	out, err := m.client.Call(ctx, CallMsg{To: m.contract, Data: data})
	if err != nil {
		return false, fmt.Errorf("call isHoldUsed: %w", err)
	}
	used, err := decodeBool(out)
	if err != nil {
		return false, fmt.Errorf("decode isHoldUsed: %w", err)
	}
	return used, nil
}

// Nonces reads the contract-side signature nonce for a beneficiary via
// getNonce.
func (m *BridgeMinter) Nonces(ctx context.Context, beneficiary string) (*big.Int, error) {
	word, err := encodeAddress(beneficiary)
	if err != nil {
		return nil, err
	}
	data := append(append([]byte{}, selGetNonce...), word...)

	out, err := m.client.Call(ctx, CallMsg{To: m.contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("call getNonce: %w", err)
	}
	nonce, err := decodeUint256(out)
	if err != nil {
		return nil, fmt.Errorf("decode getNonce: %w", err)
	}
	return nonce, nil
}

// MintWithAuthorization submits a signed mint, returning the transaction
// hash.
func (m *BridgeMinter) MintWithAuthorization(ctx context.Context, tr *Transactor, auth *MintAuthorization, sig []byte) (string, error) {
	data, err := encodeMintCall(auth, sig)
	if err != nil {
		return "", err
	}
	return tr.Send(ctx, m.contract, nil, data)
}

// encodeMintCall ABI-encodes mintWithAuthorization(auth, sig). The auth
// tuple is fully static, so its ten words sit inline in the head; the
// signature is dynamic and lives in the tail behind an offset.
func encodeMintCall(auth *MintAuthorization, sig []byte) ([]byte, error) {
	beneficiaryWord, err := encodeAddress(auth.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("encode beneficiary: %w", err)
	}

	data := append([]byte{}, selMintAuth...)
	data = append(data, encodeBytes32(auth.HoldID)...)
	data = append(data, encodeUint256(auth.Amount)...)
	data = append(data, beneficiaryWord...)
	data = append(data, encodeBytes32(auth.Iso20022Hash)...)
	data = append(data, encodeBytes3(auth.Iso4217)...)
	data = append(data, encodeUint256(auth.Deadline)...)
	data = append(data, encodeUint256(auth.Nonce)...)
	data = append(data, encodeUint256(auth.EthUsdPrice)...)
	data = append(data, encodeUint256(big.NewInt(int64(auth.PriceDecimals)))...)
	data = append(data, encodeUint256(new(big.Int).SetUint64(auth.PriceTs))...)
	// offset of the bytes argument: 10 tuple words + 1 offset word
	data = append(data, encodeUint256(big.NewInt(11*32))...)
	data = append(data, encodeDynamicBytes(sig)...)
	return data, nil
}
