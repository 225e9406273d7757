// Package idhash derives the identifiers that tie ledger records to
// on-chain state.
package idhash

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ethusd-bridge/internal/ethereum"
)

// RefPrefix is the human-readable prefix of generated hold references.
const RefPrefix = "DAES-ETH"

// HoldID computes the on-chain hold identifier for a reference:
// 0x-prefixed keccak256 of the reference string. The contract consumes
// this as a bytes32, so the mapping must never change.
func HoldID(ref string) string {
	return "0x" + hex.EncodeToString(ethereum.Keccak256([]byte(ref)))
}

// NewRef generates a unique hold reference: DAES-ETH-<unix ms>-<random>.
func NewRef(now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", RefPrefix, now.UnixMilli(), randomHex(4))
}

// TransferID generates a transfer identifier with the given prefix.
func TransferID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// InternalKey generates an internal idempotency key for system-initiated
// mints: <prefix>-<unix ms>-<random>.
func InternalKey(prefix string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), randomHex(4))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the platform RNG is broken
		panic(err)
	}
	return hex.EncodeToString(b)
}
