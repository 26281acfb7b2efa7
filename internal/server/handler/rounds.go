package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/keeper"
)

// RoundService defines the read-only round queries.
type RoundService interface {
	RecentRounds(ctx context.Context, limit int) ([]keeper.RoundView, error)
	Round(ctx context.Context, id uint64) (keeper.RoundView, error)
	Bet(ctx context.Context, roundID uint64, user string) (domain.UserBet, error)
	Balance(ctx context.Context, addr string) (*big.Int, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error)
	ClaimsByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.ClaimRecord, error)
	RecentEvents(ctx context.Context, count int) ([]domain.RoundEvent, error)
}

// RoundHandler serves round and account queries.
type RoundHandler struct {
	rounds RoundService
	logger *slog.Logger
}

func NewRoundHandler(rounds RoundService, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{rounds: rounds, logger: logger}
}

// Recent lists the latest rounds from the chain.
// GET /api/rounds?limit=10
func (h *RoundHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rounds, err := h.rounds.RecentRounds(r.Context(), limit)
	if err != nil {
		writeFailure(w, r, h.logger, "list rounds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// Get returns one round.
// GET /api/rounds/{id}
func (h *RoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id", err.Error())
		return
	}
	round, err := h.rounds.Round(r.Context(), id)
	if err != nil {
		writeFailure(w, r, h.logger, "get round", err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Bet returns one user's bet in a round.
// GET /api/rounds/{id}/bets/{address}
func (h *RoundHandler) Bet(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id", err.Error())
		return
	}
	bet, err := h.rounds.Bet(r.Context(), id, r.PathValue("address"))
	if err != nil {
		writeFailure(w, r, h.logger, "get bet", err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// historyRound is a persisted round record as served to clients.
type historyRound struct {
	keeper.RoundView
	StartTx   string `json:"startTx,omitempty"`
	SettleTx  string `json:"settleTx,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

// History lists recorded settlements.
// GET /api/rounds/history?limit=50&offset=0
func (h *RoundHandler) History(w http.ResponseWriter, r *http.Request) {
	recs, err := h.rounds.History(r.Context(), parseListOpts(r))
	if err != nil {
		writeFailure(w, r, h.logger, "list round history", err)
		return
	}
	out := make([]historyRound, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyRound{
			RoundView: keeper.NewRoundView(rec.Round),
			StartTx:   rec.StartTx,
			SettleTx:  rec.SettleTx,
			UpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": out})
}

// Events lists the most recent round lifecycle events.
// GET /api/rounds/events?limit=50
func (h *RoundHandler) Events(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	events, err := h.rounds.RecentEvents(r.Context(), opts.Limit)
	if err != nil {
		writeFailure(w, r, h.logger, "list round events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// Balance returns an account's native balance in wei.
// GET /api/accounts/{address}/balance
func (h *RoundHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("address")
	bal, err := h.rounds.Balance(r.Context(), addr)
	if err != nil {
		writeFailure(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"balance": bal.String(),
	})
}

// Claims lists claims relayed for an account.
// GET /api/accounts/{address}/claims
func (h *RoundHandler) Claims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.rounds.ClaimsByUser(r.Context(), r.PathValue("address"), parseListOpts(r))
	if err != nil {
		writeFailure(w, r, h.logger, "list claims", err)
		return
	}
	if claims == nil {
		claims = []domain.ClaimRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims})
}
