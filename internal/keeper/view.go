package keeper

import (
	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/payout"
)

// RoundView is a round as presented to API clients, with display prices
// and pool shares.
type RoundView struct {
	ID             uint64      `json:"id"`
	StartPrice     float64     `json:"startPrice"`
	EndPrice       float64     `json:"endPrice"`
	ExpiryTime     int64       `json:"expiryTime"`
	Settled        bool        `json:"settled"`
	UpPool         uint64      `json:"upPool"`
	DownPool       uint64      `json:"downPool"`
	TotalPool      uint64      `json:"totalPool"`
	UpPercentage   float64     `json:"upPercentage"`
	DownPercentage float64     `json:"downPercentage"`
	WinSide        domain.Side `json:"winSide,omitempty"`
}

// NewRoundView converts a chain round for display.
func NewRoundView(r domain.Round) RoundView {
	up, down := payout.Shares(r.UpPool, r.DownPool)
	v := RoundView{
		ID:             r.ID,
		StartPrice:     r.StartPrice.Float(),
		EndPrice:       r.EndPrice.Float(),
		ExpiryTime:     r.ExpiryTime,
		Settled:        r.Settled,
		UpPool:         r.UpPool,
		DownPool:       r.DownPool,
		TotalPool:      r.TotalPool(),
		UpPercentage:   up,
		DownPercentage: down,
	}
	if side, ok := r.Outcome(); ok {
		v.WinSide = side
	}
	return v
}
