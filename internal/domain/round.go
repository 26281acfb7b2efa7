package domain

import "time"

// Side is the direction of a bet or the outcome of a round.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
	SideTie  Side = "tie"
)

// Round mirrors the contract's round record. The contract is authoritative;
// a Round is only ever a snapshot of it.
type Round struct {
	ID         uint64
	StartPrice Price
	EndPrice   Price
	ExpiryTime int64 // unix seconds
	Settled    bool
	UpPool     uint64
	DownPool   uint64
}

// TotalPool is the sum of both pools.
func (r Round) TotalPool() uint64 { return r.UpPool + r.DownPool }

// Expired reports whether the round has passed its expiry at now (unix seconds).
func (r Round) Expired(now int64) bool { return now >= r.ExpiryTime }

// Active reports whether the round is unsettled and not yet expired.
func (r Round) Active(now int64) bool { return !r.Settled && now < r.ExpiryTime }

// Outcome returns the winning side of a settled round. ok is false for an
// unsettled round.
func (r Round) Outcome() (side Side, ok bool) {
	if !r.Settled {
		return "", false
	}
	return Classify(r.StartPrice, r.EndPrice), true
}

// Classify decides the outcome for a start and end price. Prices closer
// than 1e-4 are a tie.
func Classify(start, end Price) Side {
	var diff uint64
	if end > start {
		diff = uint64(end - start)
	} else {
		diff = uint64(start - end)
	}
	switch {
	case diff < tieUnits:
		return SideTie
	case end > start:
		return SideUp
	default:
		return SideDown
	}
}

// UserBet is a user's position in one round. A user holds at most one side per round.
type UserBet struct {
	RoundID uint64 `json:"roundId"`
	User    string `json:"user"`
	SideUp  bool   `json:"sideUp"`
	Amount  uint64 `json:"amount"`
	Claimed bool   `json:"claimed"`
}

// Side returns the bet direction.
func (b UserBet) Side() Side {
	if b.SideUp {
		return SideUp
	}
	return SideDown
}

// RoundRecord is the persisted history row for a round.
type RoundRecord struct {
	Round
	Outcome   Side
	StartTx   string
	SettleTx  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimRecord is the persisted history row for a relayed claim.
type ClaimRecord struct {
	ID        int64     `json:"id"`
	RoundID   uint64    `json:"roundId"`
	User      string    `json:"user"`
	Payout    uint64    `json:"payout"`
	TxHash    string    `json:"txHash"`
	CreatedAt time.Time `json:"createdAt"`
}
