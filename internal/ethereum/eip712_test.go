package ethereum

import (
	"bytes"
	"math/big"
	"testing"
)

func testDomain() TypedDomain {
	return TypedDomain{
		Name:              "DAES USD BridgeMinter",
		Version:           "2",
		ChainID:           big.NewInt(1),
		VerifyingContract: "0x1111111111111111111111111111111111111111",
	}
}

func testAuthorization() *MintAuthorization {
	var holdID, isoHash [32]byte
	copy(holdID[:], Keccak256([]byte("DAES-ETH-1700000000000-ref")))
	copy(isoHash[:], Keccak256([]byte("receipt payload")))

	return &MintAuthorization{
		HoldID:        holdID,
		Amount:        big.NewInt(100_000_000), // 100 tokens at 6 decimals
		Beneficiary:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		Iso20022Hash:  isoHash,
		Iso4217:       [3]byte{'U', 'S', 'D'},
		Deadline:      big.NewInt(1700000600),
		Nonce:         big.NewInt(0),
		EthUsdPrice:   big.NewInt(253142000000),
		PriceDecimals: 8,
		PriceTs:       1700000000,
	}
}

func TestAuthorizationDigest_Deterministic(t *testing.T) {
	d := testDomain()
	auth := testAuthorization()

	d1, err := AuthorizationDigest(d, auth)
	if err != nil {
		t.Fatalf("AuthorizationDigest: %v", err)
	}
	d2, err := AuthorizationDigest(d, auth)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d1, d2) {
		t.Error("digest is not deterministic")
	}
	if len(d1) != 32 {
		t.Errorf("digest length = %d, want 32", len(d1))
	}
}

func TestAuthorizationDigest_SensitiveToFields(t *testing.T) {
	d := testDomain()
	base, err := AuthorizationDigest(d, testAuthorization())
	if err != nil {
		t.Fatal(err)
	}

	mutations := []func(a *MintAuthorization){
		func(a *MintAuthorization) { a.Amount = big.NewInt(1) },
		func(a *MintAuthorization) { a.Beneficiary = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" },
		func(a *MintAuthorization) { a.Deadline = big.NewInt(1) },
		func(a *MintAuthorization) { a.Nonce = big.NewInt(9) },
		func(a *MintAuthorization) { a.EthUsdPrice = big.NewInt(1) },
		func(a *MintAuthorization) { a.PriceDecimals = 18 },
		func(a *MintAuthorization) { a.PriceTs = 1 },
		func(a *MintAuthorization) { a.Iso4217 = [3]byte{'E', 'U', 'R'} },
	}

	for i, mutate := range mutations {
		auth := testAuthorization()
		mutate(auth)
		digest, err := AuthorizationDigest(d, auth)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(base, digest) {
			t.Errorf("mutation %d did not change the digest", i)
		}
	}

	// Domain changes must also change the digest.
	other := testDomain()
	other.ChainID = big.NewInt(11155111)
	digest, err := AuthorizationDigest(other, testAuthorization())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(base, digest) {
		t.Error("chain id change did not change the digest")
	}
}

func TestSignAuthorization_Recover(t *testing.T) {
	w, err := NewWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatal(err)
	}

	d := testDomain()
	auth := testAuthorization()

	sig, err := SignAuthorization(w, d, auth)
	if err != nil {
		t.Fatalf("SignAuthorization: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	signer, err := RecoverAuthorizationSigner(d, auth, sig)
	if err != nil {
		t.Fatalf("RecoverAuthorizationSigner: %v", err)
	}
	if signer != w.Address() {
		t.Errorf("recovered %s, want %s", signer, w.Address())
	}

	// Tampered payload must not recover to the signer.
	tampered := testAuthorization()
	tampered.Amount = big.NewInt(999_000_000)
	signer, err = RecoverAuthorizationSigner(d, tampered, sig)
	if err == nil && signer == w.Address() {
		t.Error("tampered authorization recovered to the original signer")
	}
}

func TestEncodeMintCall_Layout(t *testing.T) {
	auth := testAuthorization()
	sig := make([]byte, 65)

	data, err := encodeMintCall(auth, sig)
	if err != nil {
		t.Fatalf("encodeMintCall: %v", err)
	}

	if !bytes.Equal(data[:4], selMintAuth) {
		t.Error("selector mismatch")
	}

	// 4 selector + 10 tuple words + 1 offset word + length word + padded sig
	wantLen := 4 + 10*32 + 32 + 32 + 96
	if len(data) != wantLen {
		t.Errorf("encoded length = %d, want %d", len(data), wantLen)
	}

	// Offset word points past the static head (11 words).
	offset, err := decodeUint256(data[4+10*32:])
	if err != nil {
		t.Fatal(err)
	}
	if offset.Int64() != 11*32 {
		t.Errorf("bytes offset = %d, want %d", offset.Int64(), 11*32)
	}

	// Length word carries the signature size.
	length, err := decodeUint256(data[4+11*32:])
	if err != nil {
		t.Fatal(err)
	}
	if length.Int64() != 65 {
		t.Errorf("bytes length = %d, want 65", length.Int64())
	}
}

func TestEncodeUint256_Negative(t *testing.T) {
	word := encodeUint256(big.NewInt(-1))
	for i, b := range word {
		if b != 0xff {
			t.Fatalf("byte %d = %x, want ff (two's complement of -1)", i, b)
		}
	}
}
