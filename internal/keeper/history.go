package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orionbet/orionkeeper/internal/domain"
)

const maxRecentRounds = 50

// RecentRounds reads up to limit rounds from the chain, newest first.
func (k *Keeper) RecentRounds(ctx context.Context, limit int) ([]RoundView, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxRecentRounds {
		limit = maxRecentRounds
	}
	current, err := k.chain.CurrentRoundID(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: recent rounds: %w", err)
	}
	out := make([]RoundView, 0, limit)
	for id := current; id > 0 && len(out) < limit; id-- {
		r, err := k.chain.GetRound(ctx, id)
		if errors.Is(err, domain.ErrRoundNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("keeper: recent rounds: round %d: %w", id, err)
		}
		out = append(out, NewRoundView(r))
	}
	return out, nil
}

// Round reads one round from the chain.
func (k *Keeper) Round(ctx context.Context, id uint64) (RoundView, error) {
	r, err := k.chain.GetRound(ctx, id)
	if err != nil {
		return RoundView{}, fmt.Errorf("keeper: round %d: %w", id, err)
	}
	return NewRoundView(r), nil
}

// Bet reads one user's bet from the chain.
func (k *Keeper) Bet(ctx context.Context, roundID uint64, user string) (domain.UserBet, error) {
	if !common.IsHexAddress(user) {
		return domain.UserBet{}, fmt.Errorf("keeper: bet: malformed address %q: %w", user, domain.ErrInvalidInput)
	}
	bet, err := k.chain.GetUserBet(ctx, roundID, common.HexToAddress(user).Hex())
	if err != nil {
		return domain.UserBet{}, fmt.Errorf("keeper: bet: %w", err)
	}
	return bet, nil
}

// Balance returns the native balance of addr in wei.
func (k *Keeper) Balance(ctx context.Context, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("keeper: balance: malformed address %q: %w", addr, domain.ErrInvalidInput)
	}
	bal, err := k.chain.Balance(ctx, common.HexToAddress(addr).Hex())
	if err != nil {
		return nil, fmt.Errorf("keeper: balance: %w", err)
	}
	return bal, nil
}

// History lists persisted round records, newest first.
func (k *Keeper) History(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error) {
	if k.rounds == nil {
		return nil, fmt.Errorf("keeper: history: round store: %w", domain.ErrNotConfigured)
	}
	return k.rounds.List(ctx, opts)
}

// ClaimsByUser lists persisted claims relayed for user.
func (k *Keeper) ClaimsByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.ClaimRecord, error) {
	if k.claims == nil {
		return nil, fmt.Errorf("keeper: claims: claim store: %w", domain.ErrNotConfigured)
	}
	if !common.IsHexAddress(user) {
		return nil, fmt.Errorf("keeper: claims: malformed address %q: %w", user, domain.ErrInvalidInput)
	}
	return k.claims.ListByUser(ctx, common.HexToAddress(user).Hex(), opts)
}
