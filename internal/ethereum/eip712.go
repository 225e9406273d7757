package ethereum

import (
	"fmt"
	"math/big"
)

// TypedDomain is the EIP-712 signing domain of the bridge minter.
type TypedDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// MintAuthorization is the typed payload the minter contract verifies
// before releasing tokens. Field order matches the contract's type hash.
type MintAuthorization struct {
	HoldID        [32]byte
	Amount        *big.Int
	Beneficiary   string
	Iso20022Hash  [32]byte
	Iso4217       [3]byte
	Deadline      *big.Int
	Nonce         *big.Int
	EthUsdPrice   *big.Int
	PriceDecimals uint8
	PriceTs       uint64
}

const (
	domainType = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	authType   = "MintAuthorization(bytes32 holdId,uint256 amount,address beneficiary," +
		"bytes32 iso20022Hash,bytes3 iso4217,uint256 deadline,uint256 nonce," +
		"int256 ethUsdPrice,uint8 priceDecimals,uint64 priceTs)"
)

// DomainSeparator computes the EIP-712 domain separator hash.
func DomainSeparator(d TypedDomain) ([]byte, error) {
	contractWord, err := encodeAddress(d.VerifyingContract)
	if err != nil {
		return nil, fmt.Errorf("encode verifying contract: %w", err)
	}
	return Keccak256(
		Keccak256([]byte(domainType)),
		Keccak256([]byte(d.Name)),
		Keccak256([]byte(d.Version)),
		encodeUint256(d.ChainID),
		contractWord,
	), nil
}

// structHash computes the EIP-712 hashStruct of an authorization.
func (a *MintAuthorization) structHash() ([]byte, error) {
	beneficiaryWord, err := encodeAddress(a.Beneficiary)
	if err != nil {
		return nil, fmt.Errorf("encode beneficiary: %w", err)
	}
	return Keccak256(
		Keccak256([]byte(authType)),
		encodeBytes32(a.HoldID),
		encodeUint256(a.Amount),
		beneficiaryWord,
		encodeBytes32(a.Iso20022Hash),
		encodeBytes3(a.Iso4217),
		encodeUint256(a.Deadline),
		encodeUint256(a.Nonce),
		encodeUint256(a.EthUsdPrice),
		encodeUint256(big.NewInt(int64(a.PriceDecimals))),
		encodeUint256(new(big.Int).SetUint64(a.PriceTs)),
	), nil
}

// AuthorizationDigest computes the final EIP-712 digest to be signed.
func AuthorizationDigest(d TypedDomain, a *MintAuthorization) ([]byte, error) {
	separator, err := DomainSeparator(d)
	if err != nil {
		return nil, err
	}
	structHash, err := a.structHash()
	if err != nil {
		return nil, err
	}
	return Keccak256([]byte{0x19, 0x01}, separator, structHash), nil
}

// SignAuthorization signs a mint authorization with the wallet key,
// returning a 65-byte r||s||v signature.
func SignAuthorization(w *Wallet, d TypedDomain, a *MintAuthorization) ([]byte, error) {
	digest, err := AuthorizationDigest(d, a)
	if err != nil {
		return nil, err
	}
	return w.SignDigest(digest)
}

// RecoverAuthorizationSigner recovers the address that signed an
// authorization.
func RecoverAuthorizationSigner(d TypedDomain, a *MintAuthorization, sig []byte) (string, error) {
	digest, err := AuthorizationDigest(d, a)
	if err != nil {
		return "", err
	}
	return RecoverSigner(digest, sig)
}
