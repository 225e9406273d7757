// Package receipt builds and signs ISO 20022-shaped settlement receipts.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"ethusd-bridge/internal/domain"
	"ethusd-bridge/internal/ethereum"
)

// Builder produces receipts for holds and signs them with the custody
// wallet.
type Builder struct {
	wallet  *ethereum.Wallet
	chain   string
	chainID uint64
}

// NewBuilder creates a Builder signing as wallet on the named chain.
func NewBuilder(wallet *ethereum.Wallet, chain string, chainID uint64) *Builder {
	return &Builder{wallet: wallet, chain: chain, chainID: chainID}
}

// Build assembles an unsigned receipt for a hold. The instruction id is
// the hold id truncated to the 35-character ISO limit.
func (b *Builder) Build(h *domain.Hold, status string, now time.Time) *domain.IsoReceipt {
	return &domain.IsoReceipt{
		MessageID:        "MSG-" + trimHex(h.HoldID, 16),
		CreationDateTime: now.UTC().Format(time.RFC3339),
		TransactionID:    h.HoldID,
		InstructionID:    truncate(h.HoldID, 35),
		EndToEndID:       h.Ref,
		Debtor: domain.IsoReceiptParty{
			Name:           h.DebtorName,
			Identifier:     h.DebtorID,
			IdentifierType: domain.IdentifierAccount,
		},
		Creditor: domain.IsoReceiptParty{
			Name:           h.Beneficiary,
			Identifier:     h.Beneficiary,
			IdentifierType: domain.IdentifierWallet,
		},
		InstructedAmount: domain.IsoReceiptAmount{
			Value:    h.AmountUsd,
			Currency: "USD",
			Decimals: 2,
		},
		SettlementMethod:  "BLOCKCHAIN",
		SettlementChain:   b.chain,
		SettlementChainID: b.chainID,
		HoldID:            h.HoldID,
		TxHash:            h.TxHash,
		BlockNumber:       h.BlockNumber,
		Status:            status,
	}
}

// Sign computes the canonical digest of the receipt and attaches a
// personal-message signature over it. Signature fields are excluded from
// the signed payload.
func (b *Builder) Sign(r *domain.IsoReceipt, now time.Time) error {
	digest, err := Digest(r)
	if err != nil {
		return err
	}

	sig, err := b.wallet.SignDigest(personalDigest(digest))
	if err != nil {
		return fmt.Errorf("sign receipt: %w", err)
	}

	r.Signature = "0x" + hex.EncodeToString(sig)
	r.SignedBy = b.wallet.Address()
	r.SignedAt = now.UTC().Format(time.RFC3339)
	return nil
}

// Verify checks that the receipt's signature was produced by signedBy
// over its canonical digest.
func Verify(r *domain.IsoReceipt) (bool, error) {
	if r.Signature == "" || r.SignedBy == "" {
		return false, nil
	}

	digest, err := Digest(r)
	if err != nil {
		return false, err
	}

	sig, err := hex.DecodeString(trimPrefix(r.Signature))
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	signer, err := ethereum.RecoverSigner(personalDigest(digest), sig)
	if err != nil {
		return false, err
	}
	return signer == r.SignedBy, nil
}

// Digest computes the SHA-256 digest of the receipt's canonical JSON,
// excluding the signature fields.
func Digest(r *domain.IsoReceipt) ([]byte, error) {
	unsigned := *r
	unsigned.Signature = ""
	unsigned.SignedBy = ""
	unsigned.SignedAt = ""

	canonical, err := Canonicalize(&unsigned)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

// Iso20022Hash computes the bytes32 receipt commitment embedded in the
// mint authorization: keccak256 of the canonical digest.
func Iso20022Hash(r *domain.IsoReceipt) ([32]byte, error) {
	var out [32]byte
	digest, err := Digest(r)
	if err != nil {
		return out, err
	}
	copy(out[:], ethereum.Keccak256(digest))
	return out, nil
}

// Canonicalize serializes the receipt with lexicographically sorted keys
// at every level so that the digest is stable across serializers.
func Canonicalize(r *domain.IsoReceipt) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}

	var tree interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("reparse receipt: %w", err)
	}
	return appendCanonical(nil, tree)
}

// appendCanonical writes a JSON value with sorted object keys.
func appendCanonical(buf []byte, v interface{}) ([]byte, error) {
	switch node := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf, err = appendCanonical(buf, node[k])
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	case []interface{}:
		buf = append(buf, '[')
		var err error
		for i, item := range node {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf, err = appendCanonical(buf, item)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	default:
		b, err := json.Marshal(node)
		if err != nil {
			return nil, err
		}
		return append(buf, b...), nil
	}
}

// personalDigest wraps a digest in the Ethereum personal-message
// envelope before signing.
func personalDigest(digest []byte) []byte {
	prefix := []byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(digest)))
	return ethereum.Keccak256(prefix, digest)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func trimHex(s string, n int) string {
	return truncate(trimPrefix(s), n)
}

func trimPrefix(s string) string {
	if len(s) >= 2 && s[:2] == "0x" {
		return s[2:]
	}
	return s
}
