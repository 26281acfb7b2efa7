package crypto

import (
	"errors"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/orionbet/orionkeeper/internal/domain"
)

const contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestClaimSignVerify(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	user := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	d := NewClaimDomain(31337, contract)

	sigHex, err := d.Sign(key, 5, user, 1_700_000_600)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := DecodeSignature(sigHex)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape: len=%d v=%d", len(sig), sig[64])
	}

	if err := d.VerifyClaim(5, user, 1_700_000_600, sig); err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	// Address case must not matter.
	if err := d.VerifyClaim(5, strings.ToLower(user), 1_700_000_600, sig); err != nil {
		t.Fatalf("VerifyClaim lowercase: %v", err)
	}
}

func TestClaimVerifyRejects(t *testing.T) {
	key, _ := ethcrypto.GenerateKey()
	other, _ := ethcrypto.GenerateKey()
	user := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
	d := NewClaimDomain(31337, contract)
	sigHex, _ := d.Sign(key, 5, user, 1_700_000_600)
	sig, _ := DecodeSignature(sigHex)

	cases := map[string]func() error{
		"other round":    func() error { return d.VerifyClaim(6, user, 1_700_000_600, sig) },
		"other deadline": func() error { return d.VerifyClaim(5, user, 1_700_000_601, sig) },
		"other user": func() error {
			return d.VerifyClaim(5, ethcrypto.PubkeyToAddress(other.PublicKey).Hex(), 1_700_000_600, sig)
		},
		"other chain": func() error {
			return NewClaimDomain(1, contract).VerifyClaim(5, user, 1_700_000_600, sig)
		},
		"truncated":   func() error { return d.VerifyClaim(5, user, 1_700_000_600, sig[:64]) },
		"bad address": func() error { return d.VerifyClaim(5, "bob", 1_700_000_600, sig) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			if err := fn(); !errors.Is(err, domain.ErrInvalidSignature) {
				t.Fatalf("err = %v, want ErrInvalidSignature", err)
			}
		})
	}
}
