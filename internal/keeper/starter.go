package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/notify"
)

// StartStatus is the result of a start attempt.
type StartStatus string

const (
	StartStatusStarted         StartStatus = "started"
	StartStatusActiveRound     StartStatus = "active_round"
	StartStatusNeedsSettlement StartStatus = "needs_settlement"
	StartStatusAlreadyStarting StartStatus = "start_in_progress"
)

// StartResult describes a start attempt.
type StartResult struct {
	Status     StartStatus `json:"status"`
	RoundID    uint64      `json:"roundId,omitempty"`
	TxHash     string      `json:"transactionHash,omitempty"`
	StartPrice float64     `json:"startPrice,omitempty"`
	ExpiryTime int64       `json:"expiryTime,omitempty"`
	Message    string      `json:"message"`
}

// ShouldStart reports whether a new round may be started now.
func (k *Keeper) ShouldStart(ctx context.Context) (bool, string) {
	d := k.Next(ctx)
	switch d.Action {
	case ActionStart, ActionStartNext:
		return true, d.Reason
	case ActionSettle:
		return false, d.Reason + ", settle it first"
	default:
		return false, fmt.Sprintf("%s, %ds remaining", d.Reason, d.TimeRemaining)
	}
}

// Start opens a new round at the latest price. A zero duration uses the
// configured default. It refuses while an unsettled round exists.
func (k *Keeper) Start(ctx context.Context, duration time.Duration) (StartResult, error) {
	if k.tx == nil {
		return StartResult{}, fmt.Errorf("keeper: start round: keeper key: %w", domain.ErrNotConfigured)
	}
	if duration <= 0 {
		duration = k.cfg.RoundDuration
	}
	secs := uint64(duration / time.Second)
	if secs == 0 {
		return StartResult{}, fmt.Errorf("keeper: start round: duration %s is under one second", duration)
	}

	unlock, err := k.lock(ctx, "round:start")
	if err != nil {
		return StartResult{
			Status:  StartStatusAlreadyStarting,
			Message: "another keeper is starting a round",
		}, nil
	}
	defer unlock()

	prevID, err := k.chain.CurrentRoundID(ctx)
	if err != nil {
		k.logger.WarnContext(ctx, "current round read failed, attempting start",
			slog.String("error", err.Error()))
		prevID = 0
	}
	if prevID > 0 {
		current, err := k.chain.GetRound(ctx, prevID)
		if err != nil {
			return StartResult{}, fmt.Errorf("keeper: start round: read round %d: %w", prevID, err)
		}
		if !current.Settled {
			now := k.unix()
			if current.Expired(now) {
				return StartResult{
					Status:  StartStatusNeedsSettlement,
					RoundID: prevID,
					Message: fmt.Sprintf("round %d expired and must be settled first", prevID),
				}, nil
			}
			return StartResult{
				Status:     StartStatusActiveRound,
				RoundID:    prevID,
				StartPrice: current.StartPrice.Float(),
				ExpiryTime: current.ExpiryTime,
				Message:    fmt.Sprintf("round %d is still active", prevID),
			}, nil
		}
	}

	quote, err := k.prices.Latest(ctx)
	if err != nil {
		return StartResult{}, fmt.Errorf("keeper: start round: price: %w", err)
	}
	if quote.Stale {
		return StartResult{}, fmt.Errorf("keeper: start round: only a stale price is available: %w", domain.ErrOracleUnavailable)
	}
	price, err := domain.PriceFromFloat(quote.Price)
	if err != nil {
		return StartResult{}, fmt.Errorf("keeper: start round: %w", err)
	}

	receipt, err := k.tx.StartRound(ctx, price, secs)
	if err != nil {
		k.notify(ctx, notify.EventKeeperError, "Round start failed", err.Error())
		return StartResult{}, fmt.Errorf("keeper: start round: %w", err)
	}

	id, err := k.chain.CurrentRoundID(ctx)
	if err != nil || id <= prevID {
		// The receipt proves the round exists; the read just lags.
		id = prevID + 1
	}
	started, err := k.chain.GetRound(ctx, id)
	if err != nil {
		k.logger.WarnContext(ctx, "started round not readable yet, reporting submitted values",
			slog.Uint64("round_id", id),
			slog.String("error", err.Error()),
		)
		started = domain.Round{ID: id, StartPrice: price, ExpiryTime: k.unix() + int64(secs)}
	}
	price, expiry := started.StartPrice, started.ExpiryTime

	k.metrics.RoundStarted()
	k.logger.InfoContext(ctx, "round started",
		slog.Uint64("round_id", id),
		slog.String("start_price", price.String()),
		slog.Int64("expiry", expiry),
		slog.String("tx", receipt.Hash),
	)

	now := k.now().UTC()
	k.recordRound(ctx, domain.RoundRecord{
		Round:     started,
		StartTx:   receipt.Hash,
		CreatedAt: now,
		UpdatedAt: now,
	})
	k.auditLog(ctx, "round_started", map[string]any{
		"round_id":    id,
		"start_price": price.String(),
		"duration":    secs,
		"tx":          receipt.Hash,
	})
	k.publish(ctx, domain.RoundEvent{
		Type:       domain.RoundEventStarted,
		RoundID:    id,
		TxHash:     receipt.Hash,
		StartPrice: price.Float(),
		ExpiryTime: expiry,
	})
	k.notify(ctx, notify.EventRoundStarted,
		fmt.Sprintf("Round %d started", id),
		fmt.Sprintf("Start price %s, expires in %ds", price.String(), secs))

	return StartResult{
		Status:     StartStatusStarted,
		RoundID:    id,
		TxHash:     receipt.Hash,
		StartPrice: price.Float(),
		ExpiryTime: expiry,
		Message:    fmt.Sprintf("round %d started", id),
	}, nil
}
