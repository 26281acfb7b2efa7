package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/keeper"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakePrices struct {
	quote domain.PriceQuote
	err   error
	asked int64
}

func (f *fakePrices) Latest(context.Context) (domain.PriceQuote, error) { return f.quote, f.err }

func (f *fakePrices) AtTime(_ context.Context, ts int64) (domain.PriceQuote, error) {
	f.asked = ts
	return f.quote, f.err
}

type fakeKeeper struct {
	settle    keeper.SettleResult
	advance   keeper.AdvanceResult
	start     keeper.StartResult
	auto      keeper.AutoResult
	err       error
	settleReq keeper.SettleRequest
	duration  time.Duration
	ticks     int
}

func (f *fakeKeeper) ShouldStart(context.Context) (bool, string) { return true, "no rounds exist" }

func (f *fakeKeeper) Start(_ context.Context, d time.Duration) (keeper.StartResult, error) {
	f.duration = d
	return f.start, f.err
}

func (f *fakeKeeper) PendingSettlements(context.Context) ([]keeper.PendingRound, error) {
	return []keeper.PendingRound{{RoundID: 4, ExpiredBy: 30}}, f.err
}

func (f *fakeKeeper) Settle(_ context.Context, req keeper.SettleRequest) (keeper.SettleResult, error) {
	f.settleReq = req
	return f.settle, f.err
}

func (f *fakeKeeper) SettleAndAdvance(_ context.Context, req keeper.SettleRequest) (keeper.AdvanceResult, error) {
	f.settleReq = req
	return f.advance, f.err
}

func (f *fakeKeeper) AutoManage(context.Context) (keeper.AutoResult, error) {
	f.ticks++
	return f.auto, f.err
}

func (f *fakeKeeper) RoundDuration() time.Duration { return 5 * time.Minute }

type fakeScheduler struct{ running bool }

func (s *fakeScheduler) Start(context.Context) bool {
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *fakeScheduler) Stop() bool {
	was := s.running
	s.running = false
	return was
}

func (s *fakeScheduler) Running() bool           { return s.running }
func (s *fakeScheduler) Interval() time.Duration { return 30 * time.Second }

type fakeClaims struct {
	res keeper.ClaimResult
	win keeper.Winnings
	err error
	req keeper.ClaimRequest
}

func (f *fakeClaims) Claim(_ context.Context, req keeper.ClaimRequest) (keeper.ClaimResult, error) {
	f.req = req
	return f.res, f.err
}

func (f *fakeClaims) CheckWinnings(context.Context, uint64, string) (keeper.Winnings, error) {
	return f.win, f.err
}

func do(t *testing.T, h http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, rdr))
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec, out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotConfigured, 500},
		{domain.ErrRoundNotFound, 404},
		{domain.ErrInvalidSignature, 403},
		{domain.ErrClaimExpired, 400},
		{domain.ErrNothingToClaim, 400},
		{domain.ErrInvalidInput, 400},
		{domain.ErrDuplicate, 409},
		{domain.ErrOracleUnavailable, 502},
		{domain.ErrTxReverted, 502},
		{domain.ErrTxTimeout, 504},
		{fmt.Errorf("keeper: settle round 3: %w", domain.ErrTxTimeout), 504},
		{fmt.Errorf("dial tcp: refused"), 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPriceHandler(t *testing.T) {
	prices := &fakePrices{quote: domain.PriceQuote{Price: 64000.5, Confidence: 12.25, PublishTime: 1_700_000_000, PriceID: "e62df6"}}
	h := NewPriceHandler(prices, discard())

	rec, out := do(t, h.Latest, http.MethodGet, "/api/price", "")
	if rec.Code != 200 || out["price"] != 64000.5 || out["priceId"] != "e62df6" {
		t.Fatalf("latest: %d %v", rec.Code, out)
	}

	rec, _ = do(t, h.Historical, http.MethodPost, "/api/price", `{"timestamp":1700000100}`)
	if rec.Code != 200 || prices.asked != 1_700_000_100 {
		t.Fatalf("historical: %d asked=%d", rec.Code, prices.asked)
	}

	rec, _ = do(t, h.Historical, http.MethodPost, "/api/price", `{}`)
	if rec.Code != 400 {
		t.Fatalf("missing timestamp: %d", rec.Code)
	}

	prices.err = fmt.Errorf("price_service: latest: %w", domain.ErrOracleUnavailable)
	rec, out = do(t, h.Latest, http.MethodGet, "/api/price", "")
	if rec.Code != 502 || out["success"] != false || out["details"] == "" {
		t.Fatalf("oracle down: %d %v", rec.Code, out)
	}
}

func TestSettleEndpoint(t *testing.T) {
	fk := &fakeKeeper{settle: keeper.SettleResult{
		Status: keeper.SettleStatusSettled, RoundID: 5, TxHash: "0xabc",
		StartPrice: 10, EndPrice: 10, IsTie: true,
	}}
	h := NewKeeperHandler(fk, nil, nil, discard())

	rec, _ := do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{}`)
	if rec.Code != 400 {
		t.Fatalf("missing roundId: %d", rec.Code)
	}

	rec, out := do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5,"endPrice":10}`)
	if rec.Code != 200 || out["success"] != true || out["isTie"] != true || out["transactionHash"] != "0xabc" {
		t.Fatalf("settle: %d %v", rec.Code, out)
	}
	if fk.settleReq.RoundID != 5 || fk.settleReq.EndPrice == nil || *fk.settleReq.EndPrice != 10 {
		t.Errorf("request = %+v", fk.settleReq)
	}

	fk.settle = keeper.SettleResult{Status: keeper.SettleStatusAlreadySettled, RoundID: 5, Message: "round 5 already settled"}
	rec, out = do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5}`)
	if rec.Code != 200 || out["success"] != false || out["status"] != "already_settled" {
		t.Fatalf("already settled: %d %v", rec.Code, out)
	}

	fk.err = fmt.Errorf("keeper: settle: keeper key: %w", domain.ErrNotConfigured)
	rec, out = do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5}`)
	if rec.Code != 500 || !strings.Contains(out["details"].(string), "not configured") {
		t.Fatalf("not configured: %d %v", rec.Code, out)
	}
}

func TestSettleAdvance(t *testing.T) {
	fk := &fakeKeeper{advance: keeper.AdvanceResult{
		Settlement: keeper.SettleResult{Status: keeper.SettleStatusSettled, RoundID: 5},
		NextRound:  &keeper.StartResult{Status: keeper.StartStatusStarted, RoundID: 6},
	}}
	h := NewKeeperHandler(fk, nil, nil, discard())

	rec, out := do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5,"advance":true}`)
	if rec.Code != 200 || out["success"] != true {
		t.Fatalf("advance: %d %v", rec.Code, out)
	}
	next, ok := out["nextRound"].(map[string]any)
	if !ok || next["roundId"] != float64(6) {
		t.Fatalf("nextRound = %v", out["nextRound"])
	}
}

func TestSettleAdvanceKeepsSettlementWhenStartFails(t *testing.T) {
	fk := &fakeKeeper{
		advance: keeper.AdvanceResult{
			Settlement: keeper.SettleResult{Status: keeper.SettleStatusSettled, RoundID: 5, TxHash: "0xabc"},
		},
		err: fmt.Errorf("keeper: advance after round 5: %w", domain.ErrOracleUnavailable),
	}
	h := NewKeeperHandler(fk, nil, nil, discard())

	rec, out := do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5,"advance":true}`)
	if rec.Code != 200 || out["success"] != true {
		t.Fatalf("settled then failed start: %d %v", rec.Code, out)
	}
	if out["transactionHash"] != "0xabc" || out["status"] != "settled" {
		t.Errorf("settlement dropped: %v", out)
	}
	if msg, _ := out["nextRoundError"].(string); !strings.Contains(msg, "oracle") {
		t.Errorf("nextRoundError = %v", out["nextRoundError"])
	}
	if _, ok := out["nextRound"]; ok {
		t.Errorf("nextRound should be absent: %v", out["nextRound"])
	}

	fk.advance = keeper.AdvanceResult{}
	fk.err = fmt.Errorf("keeper: settle: %w", domain.ErrTxReverted)
	rec, _ = do(t, h.Settle, http.MethodPost, "/api/keeper/settle", `{"roundId":5,"advance":true}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failed settle: %d", rec.Code)
	}
}

func TestStartEndpoint(t *testing.T) {
	fk := &fakeKeeper{start: keeper.StartResult{Status: keeper.StartStatusStarted, RoundID: 1, ExpiryTime: 1_700_000_300}}
	h := NewKeeperHandler(fk, nil, nil, discard())

	rec, out := do(t, h.Start, http.MethodPost, "/api/keeper/start", "")
	if rec.Code != 200 || out["success"] != true || fk.duration != 0 {
		t.Fatalf("default duration: %d %v %s", rec.Code, out, fk.duration)
	}
	do(t, h.Start, http.MethodPost, "/api/keeper/start", `{"durationSecs":90}`)
	if fk.duration != 90*time.Second {
		t.Fatalf("duration = %s", fk.duration)
	}

	rec, out = do(t, h.ShouldStart, http.MethodGet, "/api/keeper/start", "")
	if rec.Code != 200 || out["shouldStart"] != true {
		t.Fatalf("should start: %v", out)
	}
}

func TestScheduleThrottle(t *testing.T) {
	fk := &fakeKeeper{auto: keeper.AutoResult{Action: keeper.AutoStillActive}}
	now := time.Unix(1_700_000_000, 0)
	th := keeper.NewThrottle(time.Minute, func() time.Time { return now })
	h := NewKeeperHandler(fk, nil, th, discard())

	rec, out := do(t, h.ScheduleTick, http.MethodGet, "/api/keeper/schedule", "")
	if rec.Code != 200 || out["result"] == nil {
		t.Fatalf("first tick: %v", out)
	}
	now = now.Add(15 * time.Second)
	_, out = do(t, h.ScheduleTick, http.MethodGet, "/api/keeper/schedule", "")
	if out["nextCheckIn"] != float64(45000) {
		t.Fatalf("throttled: %v", out)
	}
	if fk.ticks != 1 {
		t.Errorf("ticks = %d", fk.ticks)
	}
}

func TestScheduleControl(t *testing.T) {
	sched := &fakeScheduler{}
	h := NewKeeperHandler(&fakeKeeper{}, sched, nil, discard())

	rec, out := do(t, h.Schedule, http.MethodPost, "/api/keeper/schedule", `{"action":"start_auto_scheduler"}`)
	if rec.Code != 200 || !sched.running || out["message"] != "auto scheduler started" {
		t.Fatalf("start: %v", out)
	}
	_, out = do(t, h.Schedule, http.MethodPost, "/api/keeper/schedule", `{"action":"start_auto_scheduler"}`)
	if out["message"] != "auto scheduler already running" {
		t.Fatalf("restart: %v", out)
	}
	do(t, h.Schedule, http.MethodPost, "/api/keeper/schedule", `{"action":"stop_auto_scheduler"}`)
	if sched.running {
		t.Fatal("still running")
	}
	rec, _ = do(t, h.Schedule, http.MethodPost, "/api/keeper/schedule", `{"action":"reboot"}`)
	if rec.Code != 400 {
		t.Fatalf("unknown action: %d", rec.Code)
	}
}

const user = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func TestClaimEndpoint(t *testing.T) {
	fc := &fakeClaims{res: keeper.ClaimResult{RoundID: 5, User: user, Payout: 326, TxHash: "0xc1"}}
	h := NewClaimHandler(fc, discard())
	sig := "0x" + strings.Repeat("ab", 64) + "1b"

	body := fmt.Sprintf(`{"roundId":5,"userAddress":%q,"deadline":1700000600,"signature":%q}`, user, sig)
	rec, out := do(t, h.Claim, http.MethodPost, "/api/claim", body)
	if rec.Code != 200 || out["success"] != true || out["transactionHash"] != "0xc1" {
		t.Fatalf("claim: %d %v", rec.Code, out)
	}
	if len(fc.req.Signature) != 65 || fc.req.Deadline != 1_700_000_600 {
		t.Errorf("request = %+v", fc.req)
	}

	rec, _ = do(t, h.Claim, http.MethodPost, "/api/claim", fmt.Sprintf(`{"roundId":5,"userAddress":%q}`, user))
	if rec.Code != 400 {
		t.Fatalf("unsigned claim: %d", rec.Code)
	}

	fc.err = fmt.Errorf("keeper: claim round 5: %w", domain.ErrInvalidSignature)
	rec, _ = do(t, h.Claim, http.MethodPost, "/api/claim", body)
	if rec.Code != 403 {
		t.Fatalf("bad signature: %d", rec.Code)
	}

	fc.err = fmt.Errorf("keeper: claim round 5: %w", domain.ErrDuplicate)
	rec, _ = do(t, h.Claim, http.MethodPost, "/api/claim", body)
	if rec.Code != 409 {
		t.Fatalf("duplicate: %d", rec.Code)
	}
}

func TestCheckWinningsEndpoint(t *testing.T) {
	fc := &fakeClaims{win: keeper.Winnings{HasWinnings: true, CanClaim: true, PotentialPayout: 326}}
	h := NewClaimHandler(fc, discard())

	rec, out := do(t, h.CheckWinnings, http.MethodPost, "/api/check-winnings",
		fmt.Sprintf(`{"userAddress":%q,"roundId":5}`, user))
	if rec.Code != 200 || out["potentialPayout"] != float64(326) || out["canClaim"] != true {
		t.Fatalf("winnings: %d %v", rec.Code, out)
	}

	rec, _ = do(t, h.CheckWinnings, http.MethodPost, "/api/check-winnings", `{"userAddress":"nope","roundId":5}`)
	if rec.Code != 400 {
		t.Fatalf("bad address: %d", rec.Code)
	}
}

type fakeRounds struct{}

func (fakeRounds) RecentRounds(context.Context, int) ([]keeper.RoundView, error) {
	return []keeper.RoundView{keeper.NewRoundView(domain.Round{ID: 2, UpPool: 1, DownPool: 3})}, nil
}

func (fakeRounds) Round(_ context.Context, id uint64) (keeper.RoundView, error) {
	if id != 2 {
		return keeper.RoundView{}, fmt.Errorf("keeper: round %d: %w", id, domain.ErrRoundNotFound)
	}
	return keeper.NewRoundView(domain.Round{ID: 2}), nil
}

func (fakeRounds) Bet(context.Context, uint64, string) (domain.UserBet, error) {
	return domain.UserBet{}, domain.ErrNoBet
}

func (fakeRounds) Balance(context.Context, string) (*big.Int, error) {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil), nil
}

func (fakeRounds) History(context.Context, domain.ListOpts) ([]domain.RoundRecord, error) {
	return nil, domain.ErrNotConfigured
}

func (fakeRounds) ClaimsByUser(context.Context, string, domain.ListOpts) ([]domain.ClaimRecord, error) {
	return nil, nil
}

func (fakeRounds) RecentEvents(context.Context, int) ([]domain.RoundEvent, error) {
	return []domain.RoundEvent{{Type: domain.RoundEventSettled, RoundID: 2}}, nil
}

func TestRoundEndpoints(t *testing.T) {
	h := NewRoundHandler(fakeRounds{}, discard())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rounds", h.Recent)
	mux.HandleFunc("GET /api/rounds/history", h.History)
	mux.HandleFunc("GET /api/rounds/{id}", h.Get)
	mux.HandleFunc("GET /api/rounds/{id}/bets/{address}", h.Bet)
	mux.HandleFunc("GET /api/accounts/{address}/balance", h.Balance)

	tests := []struct {
		path string
		want int
		has  string
	}{
		{"/api/rounds", 200, `"upPercentage":25`},
		{"/api/rounds/2", 200, `"id":2`},
		{"/api/rounds/7", 404, `"success":false`},
		{"/api/rounds/zero", 400, `invalid round id`},
		{"/api/rounds/2/bets/" + user, 404, `no bet`},
		{"/api/rounds/history", 500, `not configured`},
		{"/api/accounts/" + user + "/balance", 200, `"balance":"100000000000000000000"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want || !strings.Contains(rec.Body.String(), tt.has) {
			t.Errorf("%s: %d %s", tt.path, rec.Code, rec.Body.String())
		}
	}
}
