package ethereum

import "golang.org/x/crypto/sha3"

// Keccak256 computes the legacy Keccak-256 hash over the concatenation of
// data. Ethereum uses the pre-FIPS padding, not SHA3-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}
