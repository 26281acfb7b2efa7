package keeper

import (
	"context"
	"fmt"
)

// AutoAction is what one AutoManage tick did.
type AutoAction string

const (
	AutoSettledAndStarted AutoAction = "settled_and_started"
	AutoAlreadySettled    AutoAction = "already_settled"
	AutoSettleInProgress  AutoAction = "settle_in_progress"
	AutoStillActive       AutoAction = "still_active"
	AutoStarted           AutoAction = "started"
)

// AutoResult describes one AutoManage tick.
type AutoResult struct {
	Action        AutoAction    `json:"action"`
	Message       string        `json:"message"`
	RoundID       uint64        `json:"roundId,omitempty"`
	TimeRemaining int64         `json:"timeRemaining,omitempty"`
	Settlement    *SettleResult `json:"settlement,omitempty"`
	NextRound     *StartResult  `json:"nextRound,omitempty"`
}

// AutoManage runs one read-decide-act cycle. It is safe to call from any
// number of keepers: every step re-checks chain state and the losers of a
// race see already_settled, settle_in_progress or still_active.
func (k *Keeper) AutoManage(ctx context.Context) (AutoResult, error) {
	d := k.Next(ctx)
	switch d.Action {
	case ActionNone:
		return AutoResult{
			Action:        AutoStillActive,
			RoundID:       d.RoundID,
			TimeRemaining: d.TimeRemaining,
			Message:       fmt.Sprintf("round %d active, %ds remaining", d.RoundID, d.TimeRemaining),
		}, nil

	case ActionSettle:
		adv, err := k.SettleAndAdvance(ctx, SettleRequest{RoundID: d.RoundID})
		if err != nil {
			return AutoResult{RoundID: d.RoundID}, fmt.Errorf("keeper: auto-manage: %w", err)
		}
		res := AutoResult{RoundID: d.RoundID, Settlement: &adv.Settlement, NextRound: adv.NextRound}
		switch adv.Settlement.Status {
		case SettleStatusSettled:
			res.Action = AutoSettledAndStarted
			res.Message = fmt.Sprintf("round %d settled", d.RoundID)
			if adv.NextRound != nil && adv.NextRound.Status == StartStatusStarted {
				res.Message += fmt.Sprintf(", round %d started", adv.NextRound.RoundID)
			}
		case SettleStatusAlreadySettled:
			res.Action = AutoAlreadySettled
			res.Message = adv.Settlement.Message
		case SettleStatusInProgress:
			res.Action = AutoSettleInProgress
			res.Message = adv.Settlement.Message
		default:
			res.Action = AutoStillActive
			res.TimeRemaining = adv.Settlement.TimeRemaining
			res.Message = adv.Settlement.Message
		}
		return res, nil

	case ActionStartNext:
		// A settled current round means the previous settle-and-advance
		// never started a successor.
		next, err := k.Start(ctx, k.cfg.RoundDuration)
		if err != nil {
			return AutoResult{RoundID: d.RoundID}, fmt.Errorf("keeper: auto-manage: start next: %w", err)
		}
		return AutoResult{
			Action:    AutoAlreadySettled,
			RoundID:   d.RoundID,
			NextRound: &next,
			Message:   fmt.Sprintf("round %d already settled; %s", d.RoundID, next.Message),
		}, nil

	default:
		next, err := k.Start(ctx, k.cfg.RoundDuration)
		if err != nil {
			return AutoResult{}, fmt.Errorf("keeper: auto-manage: start: %w", err)
		}
		res := AutoResult{RoundID: next.RoundID, NextRound: &next, Message: next.Message}
		if next.Status == StartStatusStarted {
			res.Action = AutoStarted
		} else {
			res.Action = AutoStillActive
		}
		return res, nil
	}
}
