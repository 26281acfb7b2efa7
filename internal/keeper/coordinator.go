package keeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// Action is the next legal lifecycle step.
type Action string

const (
	ActionStart     Action = "start"      // no rounds exist
	ActionNone      Action = "none"       // current round is running
	ActionSettle    Action = "settle"     // current round expired unsettled
	ActionStartNext Action = "start_next" // current round settled
)

const reasonChainUnavailable = "contract not initialized or error checking state"

// Decision is the coordinator's verdict.
type Decision struct {
	Action        Action        `json:"action"`
	RoundID       uint64        `json:"roundId,omitempty"`
	TimeRemaining int64         `json:"timeRemaining,omitempty"`
	Reason        string        `json:"reason"`
	Round         *domain.Round `json:"-"`
}

// Decide picks the next action from the current round id and, when it is
// non-zero, that round's state. now and expiry are unix seconds.
func Decide(now int64, currentID uint64, round *domain.Round) Decision {
	if currentID == 0 || round == nil {
		return Decision{Action: ActionStart, Reason: "no rounds exist"}
	}
	d := Decision{RoundID: currentID, Round: round}
	switch {
	case round.Settled:
		d.Action = ActionStartNext
		d.Reason = fmt.Sprintf("round %d settled", currentID)
	case now >= round.ExpiryTime:
		d.Action = ActionSettle
		d.Reason = fmt.Sprintf("round %d expired %ds ago", currentID, now-round.ExpiryTime)
	default:
		d.Action = ActionNone
		d.TimeRemaining = round.ExpiryTime - now
		d.Reason = fmt.Sprintf("round %d active", currentID)
	}
	return d
}

// Next reads the chain and decides. A failing chain read yields
// ActionStart so that a fresh contract can be bootstrapped.
func (k *Keeper) Next(ctx context.Context) Decision {
	id, err := k.chain.CurrentRoundID(ctx)
	if err != nil {
		k.logger.WarnContext(ctx, "current round read failed", slog.String("error", err.Error()))
		return Decision{Action: ActionStart, Reason: reasonChainUnavailable}
	}
	if id == 0 {
		return Decide(k.unix(), 0, nil)
	}
	round, err := k.chain.GetRound(ctx, id)
	if err != nil {
		k.logger.WarnContext(ctx, "round read failed",
			slog.Uint64("round_id", id),
			slog.String("error", err.Error()),
		)
		return Decision{Action: ActionStart, RoundID: id, Reason: reasonChainUnavailable}
	}
	return Decide(k.unix(), id, &round)
}

// PendingRound is an expired round that has not been settled.
type PendingRound struct {
	RoundID    uint64  `json:"roundId"`
	StartPrice float64 `json:"startPrice"`
	ExpiryTime int64   `json:"expiryTime"`
	ExpiredBy  int64   `json:"expiredBy"`
	TotalPool  uint64  `json:"totalPool"`
}

// PendingSettlements scans the current round and the Lookback rounds before
// it for expired unsettled rounds, oldest first.
func (k *Keeper) PendingSettlements(ctx context.Context) ([]PendingRound, error) {
	current, err := k.chain.CurrentRoundID(ctx)
	if err != nil {
		return nil, fmt.Errorf("keeper: pending settlements: %w", err)
	}
	if current == 0 {
		return []PendingRound{}, nil
	}

	first := uint64(1)
	if current > uint64(k.cfg.Lookback) {
		first = current - uint64(k.cfg.Lookback)
	}
	now := k.unix()
	pending := make([]PendingRound, 0)
	for id := first; id <= current; id++ {
		r, err := k.chain.GetRound(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("keeper: pending settlements: round %d: %w", id, err)
		}
		if r.Settled || !r.Expired(now) {
			continue
		}
		pending = append(pending, PendingRound{
			RoundID:    id,
			StartPrice: r.StartPrice.Float(),
			ExpiryTime: r.ExpiryTime,
			ExpiredBy:  now - r.ExpiryTime,
			TotalPool:  r.TotalPool(),
		})
	}
	return pending, nil
}
