package ethereum

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// LegacyTx is a pre-EIP-1559 transaction. The custodial wallet signs
// these with EIP-155 replay protection.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       string // empty for contract creation
	Value    *big.Int
	Data     []byte
}

// SignTx signs tx for chainID with the wallet key and returns the raw
// RLP-encoded transaction plus its hash.
func SignTx(tx *LegacyTx, chainID *big.Int, w *Wallet) (raw []byte, txHash string, err error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, "", fmt.Errorf("chain id must be positive")
	}

	var toBytes []byte
	if tx.To != "" {
		toBytes, err = addressBytes(tx.To)
		if err != nil {
			return nil, "", fmt.Errorf("decode to address: %w", err)
		}
	}

	sigHash := Keccak256(rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBig(tx.GasPrice),
		rlpEncodeUint(tx.Gas),
		rlpEncodeBytes(toBytes),
		rlpEncodeBig(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBig(chainID),
		rlpEncodeBig(nil),
		rlpEncodeBig(nil),
	))

	sig, err := w.SignDigest(sigHash)
	if err != nil {
		return nil, "", err
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	// v = recid + 35 + 2*chainID per EIP-155; SignDigest returns 27+recid.
	v := new(big.Int).SetUint64(uint64(sig[64]) - 27 + 35)
	v.Add(v, new(big.Int).Mul(chainID, big.NewInt(2)))

	raw = rlpEncodeList(
		rlpEncodeUint(tx.Nonce),
		rlpEncodeBig(tx.GasPrice),
		rlpEncodeUint(tx.Gas),
		rlpEncodeBytes(toBytes),
		rlpEncodeBig(tx.Value),
		rlpEncodeBytes(tx.Data),
		rlpEncodeBig(v),
		rlpEncodeBig(r),
		rlpEncodeBig(s),
	)

	return raw, "0x" + hex.EncodeToString(Keccak256(raw)), nil
}
