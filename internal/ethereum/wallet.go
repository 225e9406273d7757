package ethereum

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Wallet holds a secp256k1 signing key and its derived address.
type Wallet struct {
	priv    *btcec.PrivateKey
	address string
}

// NewWalletFromHex creates a wallet from a 0x-prefixed hex private key.
func NewWalletFromHex(hexKey string) (*Wallet, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 bytes, got %d", len(raw))
	}

	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &Wallet{
		priv:    priv,
		address: PubkeyToAddress(priv.PubKey()),
	}, nil
}

// Address returns the EIP-55 checksummed address of the wallet.
func (w *Wallet) Address() string {
	return w.address
}

// SignDigest signs a 32-byte digest, returning a 65-byte r||s||v signature
// with v in {27, 28}.
func (w *Wallet) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	// SignCompact yields v||r||s with v already offset by 27 for an
	// uncompressed recovery key.
	compact := ecdsa.SignCompact(w.priv, digest, false)

	sig := make([]byte, 65)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// RecoverSigner recovers the checksummed address that produced a 65-byte
// r||s||v signature over digest.
func RecoverSigner(digest, sig []byte) (string, error) {
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	if len(digest) != 32 {
		return "", fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}

	compact := make([]byte, 65)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the checksummed Ethereum address of a public key.
func PubkeyToAddress(pub *btcec.PublicKey) string {
	uncompressed := pub.SerializeUncompressed()
	hash := Keccak256(uncompressed[1:])
	return ChecksumAddress("0x" + hex.EncodeToString(hash[12:]))
}
