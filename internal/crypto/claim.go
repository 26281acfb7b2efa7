package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// EIP-712 names of the claim authorisation domain.
const (
	ClaimDomainName    = "OrionBetting"
	ClaimDomainVersion = "1"
)

var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	claimTypeHash = ethcrypto.Keccak256(
		[]byte("Claim(uint64 roundId,address user,uint256 deadline)"),
	)
)

// ClaimDomain hashes, signs and verifies Claim authorisations bound to one
// contract on one chain.
type ClaimDomain struct {
	separator []byte
}

// NewClaimDomain builds the domain for contract on chainID.
func NewClaimDomain(chainID int64, contract string) *ClaimDomain {
	sep := ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(ClaimDomainName)),
			ethcrypto.Keccak256([]byte(ClaimDomainVersion)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(common.HexToAddress(contract).Bytes(), 32),
		),
	)
	return &ClaimDomain{separator: sep}
}

// Digest returns keccak256("\x19\x01" || domainSeparator || structHash).
func (d *ClaimDomain) Digest(roundID uint64, user string, deadline int64) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			claimTypeHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(roundID)),
			common.LeftPadBytes(common.HexToAddress(user).Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(deadline)),
		),
	)
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, d.separator, structHash))
}

// Sign produces the 65-byte r||s||v signature (v in {27,28}) as 0x hex.
func (d *ClaimDomain) Sign(key *ecdsa.PrivateKey, roundID uint64, user string, deadline int64) (string, error) {
	sig, err := ethcrypto.Sign(d.Digest(roundID, user, deadline), key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign claim: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// VerifyClaim checks that sig over the claim recovers to user.
func (d *ClaimDomain) VerifyClaim(roundID uint64, user string, deadline int64, sig []byte) error {
	if !common.IsHexAddress(user) {
		return fmt.Errorf("%w: malformed user address", domain.ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return fmt.Errorf("%w: expected 65 bytes, got %d", domain.ErrInvalidSignature, len(sig))
	}
	normalized := bytes.Clone(sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return fmt.Errorf("%w: bad recovery id", domain.ErrInvalidSignature)
	}

	pub, err := ethcrypto.SigToPub(d.Digest(roundID, user, deadline), normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	if ethcrypto.PubkeyToAddress(*pub) != common.HexToAddress(user) {
		return fmt.Errorf("%w: signer does not match user", domain.ErrInvalidSignature)
	}
	return nil
}

// DecodeSignature parses a 0x-prefixed or bare hex signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", domain.ErrInvalidSignature)
	}
	return b, nil
}

func concatBytes(slices ...[]byte) []byte {
	var n int
	for _, s := range slices {
		n += len(s)
	}
	out := make([]byte, 0, n)
	for _, s := range slices {
		out = append(out, s...)
	}
	return out
}

// bigIntTo32Bytes left-pads a non-negative integer to a 32-byte word.
func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
