package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/notify"
	"github.com/orionbet/orionkeeper/internal/payout"
)

// ClaimRequest is a user's signed authorisation to pay out one round.
type ClaimRequest struct {
	RoundID   uint64
	User      string
	Deadline  int64 // unix seconds
	Signature []byte
}

// ClaimResult describes a relayed claim.
type ClaimResult struct {
	RoundID uint64 `json:"roundId"`
	User    string `json:"userAddress"`
	Payout  uint64 `json:"payout"`
	Refund  bool   `json:"refund"`
	TxHash  string `json:"transactionHash"`
}

// Claim relays a user-signed claim to the contract. The keeper key only
// pays gas; the contract checks the same signature. Submission errors are
// returned as-is and never retried.
func (k *Keeper) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	if k.tx == nil || k.verifier == nil {
		return ClaimResult{}, fmt.Errorf("keeper: claim: relayer: %w", domain.ErrNotConfigured)
	}
	if !common.IsHexAddress(req.User) {
		return ClaimResult{}, fmt.Errorf("keeper: claim: malformed user address %q: %w", req.User, domain.ErrInvalidInput)
	}
	user := common.HexToAddress(req.User).Hex()

	key := fmt.Sprintf("%d:%s", req.RoundID, strings.ToLower(user))
	if !k.dedup.Begin(key) {
		k.metrics.Claim("duplicate")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, domain.ErrDuplicate)
	}

	res, err := k.relayClaim(ctx, req, user)
	if err != nil {
		k.dedup.Release(key)
		return ClaimResult{}, err
	}
	return res, nil
}

func (k *Keeper) relayClaim(ctx context.Context, req ClaimRequest, user string) (ClaimResult, error) {
	if k.unix() > req.Deadline {
		k.metrics.Claim("rejected")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, domain.ErrClaimExpired)
	}
	if err := k.verifier.VerifyClaim(req.RoundID, user, req.Deadline, req.Signature); err != nil {
		k.metrics.Claim("rejected")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, err)
	}

	round, err := k.chain.GetRound(ctx, req.RoundID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, err)
	}
	bet, err := k.chain.GetUserBet(ctx, req.RoundID, user)
	if errors.Is(err, domain.ErrNoBet) {
		k.metrics.Claim("rejected")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %s: %w", req.RoundID, payout.ReasonNoBet, domain.ErrNothingToClaim)
	}
	if err != nil {
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, err)
	}
	fee, err := k.chain.FeeBps(ctx)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: fee: %w", req.RoundID, err)
	}

	owed := payout.Calculate(round, bet, fee)
	if !owed.Claimable || owed.Amount == 0 {
		k.metrics.Claim("rejected")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %s: %w", req.RoundID, owed.Reason, domain.ErrNothingToClaim)
	}

	receipt, err := k.tx.ClaimFor(ctx, req.RoundID, user, req.Deadline, req.Signature)
	if err != nil {
		k.metrics.Claim("failed")
		return ClaimResult{}, fmt.Errorf("keeper: claim round %d: %w", req.RoundID, err)
	}
	k.metrics.Claim("relayed")
	k.logger.InfoContext(ctx, "claim relayed",
		slog.Uint64("round_id", req.RoundID),
		slog.String("user", user),
		slog.Uint64("payout", owed.Amount),
		slog.String("tx", receipt.Hash),
	)

	k.recordClaim(ctx, domain.ClaimRecord{
		RoundID:   req.RoundID,
		User:      user,
		Payout:    owed.Amount,
		TxHash:    receipt.Hash,
		CreatedAt: k.now().UTC(),
	})
	k.auditLog(ctx, "claim_relayed", map[string]any{
		"round_id": req.RoundID,
		"user":     user,
		"payout":   owed.Amount,
		"tx":       receipt.Hash,
	})
	k.publish(ctx, domain.RoundEvent{
		Type:    domain.RoundEventClaimed,
		RoundID: req.RoundID,
		TxHash:  receipt.Hash,
		User:    user,
		Payout:  owed.Amount,
	})
	k.notify(ctx, notify.EventClaim,
		fmt.Sprintf("Claim relayed for round %d", req.RoundID),
		fmt.Sprintf("%s received %d", user, owed.Amount))

	return ClaimResult{
		RoundID: req.RoundID,
		User:    user,
		Payout:  owed.Amount,
		Refund:  owed.Refund,
		TxHash:  receipt.Hash,
	}, nil
}
