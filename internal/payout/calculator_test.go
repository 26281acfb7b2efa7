package payout

import (
	"math"
	"testing"

	"github.com/orionbet/orionkeeper/internal/domain"
)

const (
	start domain.Price = 6_500_000_000_000
	up    domain.Price = 6_512_050_000_000
	down  domain.Price = 6_490_000_000_000
)

func settled(end domain.Price, upPool, downPool uint64) domain.Round {
	return domain.Round{ID: 5, StartPrice: start, EndPrice: end, Settled: true, UpPool: upPool, DownPool: downPool}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		round     domain.Round
		bet       domain.UserBet
		fee       uint64
		want      uint64
		claimable bool
		reason    Reason
	}{
		{
			name:      "winner takes share net of fee",
			round:     settled(up, 300, 700),
			bet:       domain.UserBet{SideUp: true, Amount: 100},
			fee:       200,
			want:      326,
			claimable: true,
		},
		{
			name:      "tie refunds stake",
			round:     settled(start, 300, 700),
			bet:       domain.UserBet{SideUp: true, Amount: 100},
			fee:       200,
			want:      100,
			claimable: true,
		},
		{
			name:   "loser gets nothing",
			round:  settled(down, 300, 700),
			bet:    domain.UserBet{SideUp: true, Amount: 100},
			fee:    200,
			reason: ReasonLost,
		},
		{
			name:      "down side wins",
			round:     settled(down, 300, 700),
			bet:       domain.UserBet{SideUp: false, Amount: 70},
			fee:       200,
			want:      98,
			claimable: true,
		},
		{
			name:      "no opposing bets doubles stake",
			round:     settled(up, 500, 0),
			bet:       domain.UserBet{SideUp: true, Amount: 250},
			fee:       200,
			want:      500,
			claimable: true,
		},
		{
			name:   "unsettled round",
			round:  domain.Round{ID: 6, StartPrice: start, UpPool: 1, DownPool: 1},
			bet:    domain.UserBet{SideUp: true, Amount: 1},
			fee:    200,
			reason: ReasonUnsettled,
		},
		{
			name:   "already claimed",
			round:  settled(up, 300, 700),
			bet:    domain.UserBet{SideUp: true, Amount: 100, Claimed: true},
			fee:    200,
			reason: ReasonClaimed,
		},
		{
			name:   "no bet",
			round:  settled(up, 300, 700),
			fee:    200,
			reason: ReasonNoBet,
		},
		{
			name:      "zero fee",
			round:     settled(up, 300, 700),
			bet:       domain.UserBet{SideUp: true, Amount: 300},
			want:      1000,
			claimable: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.round, tt.bet, tt.fee)
			if got.Amount != tt.want {
				t.Errorf("Amount = %d, want %d", got.Amount, tt.want)
			}
			if got.Claimable != tt.claimable {
				t.Errorf("Claimable = %v, want %v", got.Claimable, tt.claimable)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	r := settled(up, 123_456_789, 987_654_321)
	b := domain.UserBet{SideUp: true, Amount: 42_424_242}
	first := Calculate(r, b, 250)
	for i := 0; i < 10; i++ {
		if got := Calculate(r, b, 250); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
}

func TestCalculateLargePools(t *testing.T) {
	half := ^uint64(0) / 2
	got := Calculate(settled(up, half, half), domain.UserBet{SideUp: true, Amount: half}, 0)
	if got.Amount != 2*half {
		t.Fatalf("Amount = %d, want %d", got.Amount, 2*half)
	}
}

func TestShares(t *testing.T) {
	tests := []struct {
		up, down         uint64
		wantUp, wantDown float64
	}{
		{300, 700, 30, 70},
		{1, 0, 100, 0},
		{0, 0, 0, 0},
		{1, 2, 33.333333, 66.666667},
	}
	for _, tt := range tests {
		upPct, downPct := Shares(tt.up, tt.down)
		if math.Abs(upPct-tt.wantUp) > 1e-6 || math.Abs(downPct-tt.wantDown) > 1e-6 {
			t.Errorf("Shares(%d, %d) = %v, %v; want %v, %v", tt.up, tt.down, upPct, downPct, tt.wantUp, tt.wantDown)
		}
		if tt.up+tt.down > 0 && math.Abs(upPct+downPct-100) > 1e-9 {
			t.Errorf("Shares(%d, %d) sum = %v", tt.up, tt.down, upPct+downPct)
		}
	}
}
