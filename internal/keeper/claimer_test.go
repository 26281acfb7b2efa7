package keeper

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/orionbet/orionkeeper/internal/crypto"
	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/payout"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

type claimFixture struct {
	h        *harness
	claims   *crypto.ClaimDomain
	winner   *ecdsa.PrivateKey
	loser    *ecdsa.PrivateKey
	winAddr  string
	loseAddr string
	roundID  uint64
}

// newClaimFixture settles a round where up won 300 vs 700 and each side
// holds one 100 stake.
func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	cd := crypto.NewClaimDomain(31337, contractAddr)
	f := &claimFixture{h: newHarness(cd), claims: cd}
	var err error
	if f.winner, err = ethcrypto.GenerateKey(); err != nil {
		t.Fatal(err)
	}
	if f.loser, err = ethcrypto.GenerateKey(); err != nil {
		t.Fatal(err)
	}
	f.winAddr = ethcrypto.PubkeyToAddress(f.winner.PublicKey).Hex()
	f.loseAddr = ethcrypto.PubkeyToAddress(f.loser.PublicKey).Hex()

	f.h.chain.addRound(domain.Round{
		StartPrice: mustPrice(10),
		EndPrice:   mustPrice(11),
		ExpiryTime: t0 - 60,
		Settled:    true,
		UpPool:     300,
		DownPool:   700,
	})
	f.roundID = f.h.chain.current
	f.h.chain.addBet(domain.UserBet{RoundID: f.roundID, User: f.winAddr, SideUp: true, Amount: 100})
	f.h.chain.addBet(domain.UserBet{RoundID: f.roundID, User: f.loseAddr, Amount: 100})
	return f
}

func (f *claimFixture) request(t *testing.T, key *ecdsa.PrivateKey, user string, deadline int64) ClaimRequest {
	t.Helper()
	sigHex, err := f.claims.Sign(key, f.roundID, user, deadline)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := crypto.DecodeSignature(sigHex)
	if err != nil {
		t.Fatal(err)
	}
	return ClaimRequest{RoundID: f.roundID, User: user, Deadline: deadline, Signature: sig}
}

func TestClaimRelaysSignedClaim(t *testing.T) {
	f := newClaimFixture(t)
	res, err := f.h.k.Claim(context.Background(), f.request(t, f.winner, f.winAddr, t0+600))
	if err != nil {
		t.Fatal(err)
	}
	if res.Payout != 326 || res.TxHash != "0xclaim1" || res.Refund {
		t.Fatalf("res = %+v", res)
	}
	if len(f.h.claims.recs) != 1 || f.h.claims.recs[0].Payout != 326 {
		t.Errorf("claim history = %+v", f.h.claims.recs)
	}
}

func TestClaimRejectsForeignSignature(t *testing.T) {
	f := newClaimFixture(t)
	req := f.request(t, f.loser, f.winAddr, t0+600)

	_, err := f.h.k.Claim(context.Background(), req)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v", err)
	}
	if f.h.chain.claimCalls != 0 {
		t.Error("claim submitted with a foreign signature")
	}

	// A failed attempt does not block a correct retry.
	if _, err := f.h.k.Claim(context.Background(), f.request(t, f.winner, f.winAddr, t0+600)); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestClaimRejectsLoser(t *testing.T) {
	f := newClaimFixture(t)
	_, err := f.h.k.Claim(context.Background(), f.request(t, f.loser, f.loseAddr, t0+600))
	if !errors.Is(err, domain.ErrNothingToClaim) {
		t.Fatalf("err = %v", err)
	}
}

func TestClaimRejectsExpiredDeadline(t *testing.T) {
	f := newClaimFixture(t)
	_, err := f.h.k.Claim(context.Background(), f.request(t, f.winner, f.winAddr, t0-1))
	if !errors.Is(err, domain.ErrClaimExpired) {
		t.Fatalf("err = %v", err)
	}
}

func TestClaimRejectsDuplicate(t *testing.T) {
	f := newClaimFixture(t)
	req := f.request(t, f.winner, f.winAddr, t0+600)
	if _, err := f.h.k.Claim(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	_, err := f.h.k.Claim(context.Background(), req)
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("err = %v", err)
	}
	if f.h.chain.claimCalls != 1 {
		t.Errorf("claim submitted %d times", f.h.chain.claimCalls)
	}
}

func TestClaimWithoutRelayer(t *testing.T) {
	f := newClaimFixture(t)
	f.h.k.verifier = nil
	_, err := f.h.k.Claim(context.Background(), ClaimRequest{RoundID: 1, User: f.winAddr})
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckWinnings(t *testing.T) {
	f := newClaimFixture(t)
	ctx := context.Background()

	w, err := f.h.k.CheckWinnings(ctx, f.roundID, f.winAddr)
	if err != nil {
		t.Fatal(err)
	}
	if !w.HasWinnings || !w.CanClaim || w.PotentialPayout != 326 || w.Round.WinSide != domain.SideUp {
		t.Fatalf("winner = %+v", w)
	}
	if w.Round.UpPercentage+w.Round.DownPercentage != 100 {
		t.Errorf("shares = %v/%v", w.Round.UpPercentage, w.Round.DownPercentage)
	}

	w, err = f.h.k.CheckWinnings(ctx, f.roundID, f.loseAddr)
	if err != nil {
		t.Fatal(err)
	}
	if w.HasWinnings || w.CanClaim || w.PotentialPayout != 0 {
		t.Fatalf("loser = %+v", w)
	}

	stranger := "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	w, err = f.h.k.CheckWinnings(ctx, f.roundID, stranger)
	if err != nil {
		t.Fatal(err)
	}
	if w.HasWinnings || w.UserBet != nil || w.Message == "" {
		t.Fatalf("stranger = %+v", w)
	}

	if _, err := f.h.k.Claim(ctx, f.request(t, f.winner, f.winAddr, t0+600)); err != nil {
		t.Fatal(err)
	}
	w, err = f.h.k.CheckWinnings(ctx, f.roundID, f.winAddr)
	if err != nil {
		t.Fatal(err)
	}
	if w.HasWinnings || w.CanClaim || w.PotentialPayout != 0 {
		t.Fatalf("claimed winner = %+v", w)
	}
	if w.Message != string(payout.ReasonClaimed) {
		t.Errorf("claimed winner message = %q", w.Message)
	}
}
