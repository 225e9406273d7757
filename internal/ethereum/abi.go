package ethereum

import (
	"fmt"
	"math/big"
)

// Selector computes the 4-byte function selector for a canonical
// signature like "transfer(address,uint256)".
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

// encodeUint256 left-pads v to a 32-byte ABI word. Negative values are
// encoded in two's complement, which covers int256 arguments too.
func encodeUint256(v *big.Int) []byte {
	word := make([]byte, 32)
	if v == nil {
		return word
	}
	if v.Sign() < 0 {
		// two's complement: 2^256 + v
		mod := new(big.Int).Lsh(big.NewInt(1), 256)
		v = new(big.Int).Add(mod, v)
	}
	b := v.Bytes()
	copy(word[32-len(b):], b)
	return word
}

// encodeAddress left-pads a 20-byte address to a 32-byte ABI word.
func encodeAddress(addr string) ([]byte, error) {
	raw, err := addressBytes(addr)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 20 {
		return nil, fmt.Errorf("address must be 20 bytes, got %d", len(raw))
	}
	word := make([]byte, 32)
	copy(word[12:], raw)
	return word, nil
}

// encodeBytes32 copies a fixed 32-byte value into an ABI word.
func encodeBytes32(b [32]byte) []byte {
	word := make([]byte, 32)
	copy(word, b[:])
	return word
}

// encodeBytes3 right-pads a 3-byte value into an ABI word.
func encodeBytes3(b [3]byte) []byte {
	word := make([]byte, 32)
	copy(word, b[:])
	return word
}

// encodeDynamicBytes encodes the tail of a dynamic bytes argument:
// length word followed by right-padded content.
func encodeDynamicBytes(b []byte) []byte {
	out := encodeUint256(big.NewInt(int64(len(b))))
	out = append(out, b...)
	if pad := len(b) % 32; pad != 0 {
		out = append(out, make([]byte, 32-pad)...)
	}
	return out
}

// decodeUint256 reads a 32-byte ABI word as an unsigned big integer.
func decodeUint256(data []byte) (*big.Int, error) {
	if len(data) < 32 {
		return nil, fmt.Errorf("abi word too short: %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data[:32]), nil
}

// decodeBool reads a 32-byte ABI word as a boolean.
func decodeBool(data []byte) (bool, error) {
	v, err := decodeUint256(data)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}
