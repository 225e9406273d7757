package ethereum

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"testing"
)

func bigOne() *big.Int { return big.NewInt(1) }
func big1e9() *big.Int { return big.NewInt(1_000_000_000) }

func TestKeccak256_EmptyInput(t *testing.T) {
	got := hex.EncodeToString(Keccak256(nil))
	want := "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got != want {
		t.Errorf("Keccak256(nil) = %s, want %s", got, want)
	}
}

func TestSelector_KnownFunctions(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		{"transfer(address,uint256)", "a9059cbb"},
		{"balanceOf(address)", "70a08231"},
		{"decimals()", "313ce567"},
		{"latestRoundData()", "feaf968c"},
	}

	for _, tt := range tests {
		got := hex.EncodeToString(Selector(tt.signature))
		if got != tt.want {
			t.Errorf("Selector(%q) = %s, want %s", tt.signature, got, tt.want)
		}
	}
}

func TestChecksumAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"},
		{"0xdac17f958d2ee523a2206206994597c13d831ec7", "0xdAC17F958D2ee523a2206206994597C13D831ec7"},
	}

	for _, tt := range tests {
		if got := ChecksumAddress(tt.in); got != tt.want {
			t.Errorf("ChecksumAddress(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},  // correct checksum
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true},  // all lowercase
		{"0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", true},  // all uppercase
		{"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1Beaed", false}, // bad checksum
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beae", false},  // too short
		{"5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},   // missing prefix
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidAddress(tt.addr); got != tt.valid {
			t.Errorf("ValidAddress(%q) = %v, want %v", tt.addr, got, tt.valid)
		}
	}
}

func TestWallet_AddressDerivation(t *testing.T) {
	// Private key 1 has a well-known address.
	w, err := NewWalletFromHex("0x0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("NewWalletFromHex: %v", err)
	}

	want := "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"
	if w.Address() != want {
		t.Errorf("Address() = %s, want %s", w.Address(), want)
	}
}

func TestWallet_SignAndRecover(t *testing.T) {
	w, err := NewWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("NewWalletFromHex: %v", err)
	}

	digest := Keccak256([]byte("hold settlement payload"))
	sig, err := w.SignDigest(digest)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Errorf("recovery byte = %d, want 27 or 28", sig[64])
	}

	recovered, err := RecoverSigner(digest, sig)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if recovered != w.Address() {
		t.Errorf("recovered %s, want %s", recovered, w.Address())
	}
}

func TestWallet_InvalidKey(t *testing.T) {
	if _, err := NewWalletFromHex("0xdeadbeef"); err == nil {
		t.Error("expected error for short key")
	}
	if _, err := NewWalletFromHex("not-hex"); err == nil {
		t.Error("expected error for non-hex key")
	}
}

func TestRLP_KnownEncodings(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"empty bytes", rlpEncodeBytes(nil), "80"},
		{"single low byte", rlpEncodeBytes([]byte{0x7f}), "7f"},
		{"single high byte", rlpEncodeBytes([]byte{0x80}), "8180"},
		{"short string", rlpEncodeBytes([]byte("dog")), "83646f67"},
		{"zero uint", rlpEncodeUint(0), "80"},
		{"small uint", rlpEncodeUint(15), "0f"},
		{"uint 1024", rlpEncodeUint(1024), "820400"},
		{"empty list", rlpEncodeList(), "c0"},
		{"list of strings", rlpEncodeList(rlpEncodeBytes([]byte("cat")), rlpEncodeBytes([]byte("dog"))), "c88363617483646f67"},
	}

	for _, tt := range tests {
		if got := hex.EncodeToString(tt.got); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestSignTx_RoundTripFields(t *testing.T) {
	w, err := NewWalletFromHex("0x0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatal(err)
	}

	tx := &LegacyTx{
		Nonce:    7,
		GasPrice: big1e9(),
		Gas:      21000,
		To:       "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Value:    big1e9(),
	}

	raw, txHash, err := SignTx(tx, bigOne(), w)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("empty raw transaction")
	}
	if len(txHash) != 66 || txHash[:2] != "0x" {
		t.Errorf("tx hash %q is not a 0x-prefixed 32-byte hex string", txHash)
	}

	// Deterministic signing (RFC 6979): same input, same bytes.
	raw2, txHash2, err := SignTx(tx, bigOne(), w)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, raw2) || txHash != txHash2 {
		t.Error("signing the same transaction twice produced different output")
	}
}

func TestSignTx_RejectsBadChainID(t *testing.T) {
	w, _ := NewWalletFromHex("0x0000000000000000000000000000000000000000000000000000000000000001")
	if _, _, err := SignTx(&LegacyTx{Gas: 21000}, nil, w); err == nil {
		t.Error("expected error for nil chain id")
	}
}
