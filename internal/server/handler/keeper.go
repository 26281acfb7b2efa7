package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/orionbet/orionkeeper/internal/keeper"
)

// KeeperService defines the round lifecycle operations the keeper
// endpoints require.
type KeeperService interface {
	ShouldStart(ctx context.Context) (bool, string)
	Start(ctx context.Context, duration time.Duration) (keeper.StartResult, error)
	PendingSettlements(ctx context.Context) ([]keeper.PendingRound, error)
	Settle(ctx context.Context, req keeper.SettleRequest) (keeper.SettleResult, error)
	SettleAndAdvance(ctx context.Context, req keeper.SettleRequest) (keeper.AdvanceResult, error)
	AutoManage(ctx context.Context) (keeper.AutoResult, error)
	RoundDuration() time.Duration
}

// SchedulerControl is the handle of the background auto-manage loop.
type SchedulerControl interface {
	Start(ctx context.Context) bool
	Stop() bool
	Running() bool
	Interval() time.Duration
}

// KeeperHandler serves the /api/keeper endpoints.
type KeeperHandler struct {
	keeper    KeeperService
	scheduler SchedulerControl // nil disables POST /api/keeper/schedule
	throttle  *keeper.Throttle
	now       func() time.Time
	logger    *slog.Logger
}

// NewKeeperHandler creates a KeeperHandler. throttle limits how often GET
// /api/keeper/schedule may run a tick.
func NewKeeperHandler(k KeeperService, scheduler SchedulerControl, throttle *keeper.Throttle, logger *slog.Logger) *KeeperHandler {
	return &KeeperHandler{
		keeper:    k,
		scheduler: scheduler,
		throttle:  throttle,
		now:       time.Now,
		logger:    logger,
	}
}

// ShouldStart reports whether a new round can be started.
// GET /api/keeper/start
func (h *KeeperHandler) ShouldStart(w http.ResponseWriter, r *http.Request) {
	ok, reason := h.keeper.ShouldStart(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"shouldStart": ok,
		"reason":      reason,
	})
}

type startRequest struct {
	DurationSecs int64 `json:"durationSecs"`
}

type startResponse struct {
	Success bool `json:"success"`
	keeper.StartResult
}

// Start opens a new round.
// POST /api/keeper/start {"durationSecs": 300}
func (h *KeeperHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.DurationSecs < 0 {
		writeError(w, http.StatusBadRequest, "durationSecs must be positive", "")
		return
	}
	res, err := h.keeper.Start(r.Context(), time.Duration(req.DurationSecs)*time.Second)
	if err != nil {
		writeFailure(w, r, h.logger, "start round", err)
		return
	}
	writeJSON(w, http.StatusOK, startResponse{
		Success:     res.Status == keeper.StartStatusStarted,
		StartResult: res,
	})
}

// Pending lists expired rounds awaiting settlement.
// GET /api/keeper/settle
func (h *KeeperHandler) Pending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.keeper.PendingSettlements(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "check rounds for settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roundsNeedingSettlement": pending,
		"currentTime":             h.now().Unix(),
	})
}

type settleRequest struct {
	RoundID  uint64   `json:"roundId"`
	EndPrice *float64 `json:"endPrice"`
	Advance  bool     `json:"advance"` // start the next round after settling
}

type settleResponse struct {
	Success bool `json:"success"`
	keeper.SettleResult
	NextRound      *keeper.StartResult `json:"nextRound,omitempty"`
	NextRoundError string              `json:"nextRoundError,omitempty"`
}

// Settle settles one round, optionally starting the next.
// POST /api/keeper/settle {"roundId": 5, "endPrice": 64000.5, "advance": false}
func (h *KeeperHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.RoundID == 0 {
		writeError(w, http.StatusBadRequest, "roundId is required", "")
		return
	}
	if req.EndPrice != nil && *req.EndPrice <= 0 {
		writeError(w, http.StatusBadRequest, "endPrice must be positive", "")
		return
	}

	sreq := keeper.SettleRequest{RoundID: req.RoundID, EndPrice: req.EndPrice}
	var resp settleResponse
	if req.Advance {
		adv, err := h.keeper.SettleAndAdvance(r.Context(), sreq)
		switch {
		case err == nil:
		case adv.Settlement.Status == keeper.SettleStatusSettled:
			// The settlement stands even though the next round did not start.
			h.logger.WarnContext(r.Context(), "start next round failed",
				slog.Uint64("round_id", adv.Settlement.RoundID),
				slog.String("error", err.Error()),
			)
			resp.NextRoundError = err.Error()
		default:
			writeFailure(w, r, h.logger, "settle round", err)
			return
		}
		resp.SettleResult, resp.NextRound = adv.Settlement, adv.NextRound
	} else {
		res, err := h.keeper.Settle(r.Context(), sreq)
		if err != nil {
			writeFailure(w, r, h.logger, "settle round", err)
			return
		}
		resp.SettleResult = res
	}
	resp.Success = resp.Status == keeper.SettleStatusSettled
	writeJSON(w, http.StatusOK, resp)
}

type autoManageResponse struct {
	Success bool `json:"success"`
	keeper.AutoResult
}

// AutoManage runs one read-decide-act cycle.
// POST /api/keeper/auto-manage
func (h *KeeperHandler) AutoManage(w http.ResponseWriter, r *http.Request) {
	res, err := h.keeper.AutoManage(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "auto-manage rounds", err)
		return
	}
	writeJSON(w, http.StatusOK, autoManageResponse{Success: true, AutoResult: res})
}

// ScheduleTick runs one auto-manage cycle, at most once per throttle
// interval.
// GET /api/keeper/schedule
func (h *KeeperHandler) ScheduleTick(w http.ResponseWriter, r *http.Request) {
	if h.throttle != nil {
		if ok, wait := h.throttle.Allow(); !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"message":     "schedule check too frequent",
				"nextCheckIn": wait.Milliseconds(),
			})
			return
		}
	}
	res, err := h.keeper.AutoManage(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "run scheduled check", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lastCheck": h.now().UnixMilli(),
		"result":    res,
		"scheduler": h.schedulerState(),
	})
}

type scheduleRequest struct {
	Action string `json:"action"`
}

// Schedule starts or stops the background scheduler.
// POST /api/keeper/schedule {"action": "start_auto_scheduler" | "stop_auto_scheduler"}
func (h *KeeperHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not available in this mode", "")
		return
	}
	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	var changed bool
	var msg string
	switch req.Action {
	case "start_auto_scheduler":
		changed = h.scheduler.Start(r.Context())
		msg = "auto scheduler started"
		if !changed {
			msg = "auto scheduler already running"
		}
	case "stop_auto_scheduler":
		changed = h.scheduler.Stop()
		msg = "auto scheduler stopped"
		if !changed {
			msg = "auto scheduler was not running"
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown action", "use start_auto_scheduler or stop_auto_scheduler")
		return
	}
	h.logger.InfoContext(r.Context(), "scheduler control",
		slog.String("action", req.Action),
		slog.Bool("changed", changed),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"scheduler": h.schedulerState(),
	})
}

func (h *KeeperHandler) schedulerState() map[string]any {
	if h.scheduler == nil {
		return nil
	}
	return map[string]any{
		"running":         h.scheduler.Running(),
		"intervalSeconds": int64(h.scheduler.Interval() / time.Second),
	}
}
