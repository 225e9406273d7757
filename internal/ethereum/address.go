package ethereum

import (
	"encoding/hex"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsHexAddress reports whether s has the shape of an Ethereum address:
// 0x followed by 40 hex characters. It does not check the EIP-55 checksum.
func IsHexAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidAddress reports whether s is a usable Ethereum address. Mixed-case
// input must carry a correct EIP-55 checksum; all-lowercase and
// all-uppercase hex are accepted as checksum-less forms.
func ValidAddress(s string) bool {
	if !IsHexAddress(s) {
		return false
	}
	body := s[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return ChecksumAddress(s) == s
}

// ChecksumAddress returns the EIP-55 checksummed form of addr. The input
// must already be shape-valid.
func ChecksumAddress(addr string) string {
	body := strings.ToLower(strings.TrimPrefix(addr, "0x"))
	hash := Keccak256([]byte(body))
	hexHash := hex.EncodeToString(hash)

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' && hexHash[i] >= '8' {
			c = c - 'a' + 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

// addressBytes decodes an address into its 20 raw bytes.
func addressBytes(addr string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
}
