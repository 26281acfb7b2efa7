package keeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/payout"
)

// Winnings is a user's position in one round, priced for display. The
// contract computes the authoritative amount at claim time.
type Winnings struct {
	HasWinnings     bool            `json:"hasWinnings"`
	CanClaim        bool            `json:"canClaim"`
	PotentialPayout uint64          `json:"potentialPayout"`
	Refund          bool            `json:"refund"`
	Message         string          `json:"message,omitempty"`
	Round           RoundView       `json:"round"`
	UserBet         *domain.UserBet `json:"userBet"`
}

// CheckWinnings reports what user could claim from roundID.
func (k *Keeper) CheckWinnings(ctx context.Context, roundID uint64, user string) (Winnings, error) {
	if !common.IsHexAddress(user) {
		return Winnings{}, fmt.Errorf("keeper: check winnings: malformed address %q: %w", user, domain.ErrInvalidInput)
	}
	user = common.HexToAddress(user).Hex()

	round, err := k.chain.GetRound(ctx, roundID)
	if err != nil {
		return Winnings{}, fmt.Errorf("keeper: check winnings: %w", err)
	}
	w := Winnings{Round: NewRoundView(round)}

	bet, err := k.chain.GetUserBet(ctx, roundID, user)
	if errors.Is(err, domain.ErrNoBet) {
		w.Message = "no bet placed in this round"
		return w, nil
	}
	if err != nil {
		return Winnings{}, fmt.Errorf("keeper: check winnings: %w", err)
	}
	w.UserBet = &bet

	fee, err := k.chain.FeeBps(ctx)
	if err != nil {
		return Winnings{}, fmt.Errorf("keeper: check winnings: fee: %w", err)
	}

	// A claimed bet owes nothing.
	owed := payout.Calculate(round, bet, fee)

	w.HasWinnings = owed.Claimable && owed.Amount > 0
	w.CanClaim = w.HasWinnings
	w.PotentialPayout = owed.Amount
	w.Refund = owed.Refund
	if !w.HasWinnings {
		w.Message = string(owed.Reason)
	}
	return w, nil
}
