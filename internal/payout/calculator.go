// Package payout computes parimutuel payouts for settled rounds.
//
// All arithmetic uses math/big so results are exact and identical to the
// integer math performed by the contract.
package payout

import (
	"math/big"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10_000

// Reason explains a zero payout.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoBet      Reason = "no bet placed in this round"
	ReasonUnsettled  Reason = "round is not settled yet"
	ReasonClaimed    Reason = "winnings already claimed"
	ReasonLost       Reason = "bet lost"
	ReasonEmptyPool  Reason = "winning pool is empty"
	ReasonInvalidFee Reason = "fee exceeds 100%"
)

// Result is the outcome of a payout computation.
type Result struct {
	Amount    uint64      `json:"amount"`
	Claimable bool        `json:"claimable"`
	Refund    bool        `json:"refund"`
	Outcome   domain.Side `json:"outcome,omitempty"`
	Reason    Reason      `json:"reason,omitempty"`
}

// Calculate returns what bet would receive from round at feeBps.
//
// A tie refunds the stake. A winning bet on a round whose losing pool is
// empty receives double its stake. Otherwise the winner receives its share
// of the total pool net of fee, rounded down.
func Calculate(round domain.Round, bet domain.UserBet, feeBps uint64) Result {
	switch {
	case bet.Amount == 0:
		return Result{Reason: ReasonNoBet}
	case !round.Settled:
		return Result{Reason: ReasonUnsettled}
	case feeBps > MaxFeeBps:
		return Result{Reason: ReasonInvalidFee}
	}

	outcome, _ := round.Outcome()
	res := Result{Outcome: outcome}
	if bet.Claimed {
		res.Reason = ReasonClaimed
		return res
	}

	if outcome == domain.SideTie {
		res.Amount = bet.Amount
		res.Refund = true
		res.Claimable = true
		return res
	}
	if bet.Side() != outcome {
		res.Reason = ReasonLost
		return res
	}

	winning, losing := round.UpPool, round.DownPool
	if outcome == domain.SideDown {
		winning, losing = losing, winning
	}
	if winning == 0 {
		res.Reason = ReasonEmptyPool
		return res
	}
	if losing == 0 {
		res.Amount = doubled(bet.Amount)
		res.Claimable = res.Amount > 0
		return res
	}

	total := new(big.Int).Add(u(winning), u(losing))
	fee := new(big.Int).Mul(total, u(feeBps))
	fee.Quo(fee, big.NewInt(MaxFeeBps))
	net := new(big.Int).Sub(total, fee)

	amt := new(big.Int).Mul(u(bet.Amount), net)
	amt.Quo(amt, u(winning))
	res.Amount = clamp(amt)
	res.Claimable = res.Amount > 0
	return res
}

// Shares returns the percentage of the total pool on each side. The two
// values always sum to 100 when either pool is non-empty, and are both zero
// otherwise.
func Shares(upPool, downPool uint64) (upPct, downPct float64) {
	total := new(big.Int).Add(u(upPool), u(downPool))
	if total.Sign() == 0 {
		return 0, 0
	}
	r := new(big.Rat).SetFrac(new(big.Int).Mul(u(upPool), big.NewInt(100)), total)
	upPct, _ = r.Float64()
	return upPct, 100 - upPct
}

func u(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

func doubled(v uint64) uint64 {
	return clamp(new(big.Int).Lsh(u(v), 1))
}

func clamp(v *big.Int) uint64 {
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// WinSide is the outcome for a start and end price, with prices closer than
// 1e-4 counted as a tie.
func WinSide(start, end domain.Price) domain.Side {
	return domain.Classify(start, end)
}
