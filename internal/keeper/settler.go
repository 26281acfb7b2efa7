package keeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/notify"
)

// SettleStatus is the result of a settlement attempt.
type SettleStatus string

const (
	SettleStatusSettled        SettleStatus = "settled"
	SettleStatusAlreadySettled SettleStatus = "already_settled"
	SettleStatusNotExpired     SettleStatus = "not_expired"
	SettleStatusInProgress     SettleStatus = "settle_in_progress"
)

// SettleRequest names the round to settle. A nil EndPrice is resolved from
// the oracle at the round's expiry.
type SettleRequest struct {
	RoundID  uint64
	EndPrice *float64
}

// SettleResult describes a settlement attempt.
type SettleResult struct {
	Status        SettleStatus `json:"status"`
	RoundID       uint64       `json:"roundId"`
	TxHash        string       `json:"transactionHash,omitempty"`
	StartPrice    float64      `json:"startPrice"`
	EndPrice      float64      `json:"endPrice,omitempty"`
	UpWins        bool         `json:"upWins"`
	IsTie         bool         `json:"isTie"`
	TimeRemaining int64        `json:"timeRemaining,omitempty"`
	Message       string       `json:"message"`
}

func alreadySettled(r domain.Round, msg string) SettleResult {
	res := SettleResult{
		Status:     SettleStatusAlreadySettled,
		RoundID:    r.ID,
		StartPrice: r.StartPrice.Float(),
		Message:    msg,
	}
	if side, ok := r.Outcome(); ok {
		res.EndPrice = r.EndPrice.Float()
		res.UpWins = side == domain.SideUp
		res.IsTie = side == domain.SideTie
	}
	return res
}

// Settle settles one expired round. The round is re-read under the
// settle:{id} lock before anything is submitted, and a submission that
// fails because another keeper got there first is reported as
// already_settled. A round whose lock another keeper holds is reported as
// settle_in_progress.
func (k *Keeper) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	if k.tx == nil {
		return SettleResult{}, fmt.Errorf("keeper: settle: keeper key: %w", domain.ErrNotConfigured)
	}
	id := req.RoundID
	if id == 0 {
		current, err := k.chain.CurrentRoundID(ctx)
		if err != nil {
			return SettleResult{}, fmt.Errorf("keeper: settle: current round: %w", err)
		}
		if current == 0 {
			return SettleResult{}, fmt.Errorf("keeper: settle: %w", domain.ErrRoundNotFound)
		}
		id = current
	}

	unlock, err := k.lock(ctx, fmt.Sprintf("settle:%d", id))
	if err != nil {
		k.metrics.Settlement(string(SettleStatusInProgress))
		return SettleResult{
			Status:  SettleStatusInProgress,
			RoundID: id,
			Message: fmt.Sprintf("round %d is being settled by another keeper", id),
		}, nil
	}
	defer unlock()

	round, err := k.chain.GetRound(ctx, id)
	if err != nil {
		return SettleResult{}, fmt.Errorf("keeper: settle: read round %d: %w", id, err)
	}
	if round.Settled {
		k.metrics.Settlement(string(SettleStatusAlreadySettled))
		return alreadySettled(round, fmt.Sprintf("round %d already settled", id)), nil
	}
	now := k.unix()
	if !round.Expired(now) {
		k.metrics.Settlement(string(SettleStatusNotExpired))
		return SettleResult{
			Status:        SettleStatusNotExpired,
			RoundID:       id,
			StartPrice:    round.StartPrice.Float(),
			TimeRemaining: round.ExpiryTime - now,
			Message:       fmt.Sprintf("round %d has not expired yet", id),
		}, nil
	}

	end, err := k.endPrice(ctx, round, req.EndPrice)
	if err != nil {
		k.metrics.Settlement("failed")
		return SettleResult{}, fmt.Errorf("keeper: settle round %d: %w", id, err)
	}

	receipt, err := k.tx.Settle(ctx, id, end)
	if err != nil {
		if after, rerr := k.chain.GetRound(ctx, id); rerr == nil && after.Settled {
			k.logger.InfoContext(ctx, "round settled by another keeper",
				slog.Uint64("round_id", id),
				slog.String("error", err.Error()),
			)
			k.metrics.Settlement(string(SettleStatusAlreadySettled))
			return alreadySettled(after, fmt.Sprintf("round %d was settled by another keeper", id)), nil
		}
		k.metrics.Settlement("failed")
		k.notify(ctx, notify.EventKeeperError,
			fmt.Sprintf("Settlement of round %d failed", id), err.Error())
		return SettleResult{}, fmt.Errorf("keeper: settle round %d: %w", id, err)
	}

	outcome := domain.Classify(round.StartPrice, end)
	k.metrics.Settlement(string(SettleStatusSettled))
	k.logger.InfoContext(ctx, "round settled",
		slog.Uint64("round_id", id),
		slog.String("start_price", round.StartPrice.String()),
		slog.String("end_price", end.String()),
		slog.String("outcome", string(outcome)),
		slog.String("tx", receipt.Hash),
	)

	settled := round
	settled.EndPrice = end
	settled.Settled = true
	ts := k.now().UTC()
	k.recordRound(ctx, domain.RoundRecord{
		Round:     settled,
		Outcome:   outcome,
		SettleTx:  receipt.Hash,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	k.auditLog(ctx, "round_settled", map[string]any{
		"round_id":  id,
		"end_price": end.String(),
		"outcome":   string(outcome),
		"tx":        receipt.Hash,
	})
	k.publish(ctx, domain.RoundEvent{
		Type:       domain.RoundEventSettled,
		RoundID:    id,
		TxHash:     receipt.Hash,
		StartPrice: round.StartPrice.Float(),
		EndPrice:   end.Float(),
		ExpiryTime: round.ExpiryTime,
		Outcome:    outcome,
	})
	k.notify(ctx, notify.EventRoundSettled,
		fmt.Sprintf("Round %d settled: %s", id, outcome),
		fmt.Sprintf("Start %s, end %s, pool %d", round.StartPrice, end, round.TotalPool()))

	return SettleResult{
		Status:     SettleStatusSettled,
		RoundID:    id,
		TxHash:     receipt.Hash,
		StartPrice: round.StartPrice.Float(),
		EndPrice:   end.Float(),
		UpWins:     outcome == domain.SideUp,
		IsTie:      outcome == domain.SideTie,
		Message:    fmt.Sprintf("round %d settled", id),
	}, nil
}

func (k *Keeper) endPrice(ctx context.Context, round domain.Round, given *float64) (domain.Price, error) {
	if given != nil {
		p, err := domain.PriceFromFloat(*given)
		if err != nil {
			return 0, fmt.Errorf("end price: %v: %w", err, domain.ErrInvalidInput)
		}
		return p, nil
	}
	q, err := k.prices.EndPrice(ctx, round.ExpiryTime)
	if err != nil {
		return 0, fmt.Errorf("end price: %w", err)
	}
	if q.Stale {
		return 0, fmt.Errorf("end price: only a stale price is available: %w", domain.ErrOracleUnavailable)
	}
	return domain.PriceFromFloat(q.Price)
}

// AdvanceResult is a settlement followed, when it succeeded, by the start
// of the next round.
type AdvanceResult struct {
	Settlement SettleResult `json:"settlement"`
	NextRound  *StartResult `json:"nextRound,omitempty"`
}

// SettleAndAdvance settles the round and, only if this call settled it,
// waits the cooldown and starts the next round with the default duration.
// A crash during the cooldown leaves a settled round with no successor,
// which AutoManage repairs on its next tick.
func (k *Keeper) SettleAndAdvance(ctx context.Context, req SettleRequest) (AdvanceResult, error) {
	settled, err := k.Settle(ctx, req)
	if err != nil {
		return AdvanceResult{}, err
	}
	res := AdvanceResult{Settlement: settled}
	if settled.Status != SettleStatusSettled {
		return res, nil
	}
	if err := sleep(ctx, k.cfg.Cooldown); err != nil {
		return res, fmt.Errorf("keeper: advance after round %d: %w", settled.RoundID, err)
	}
	next, err := k.Start(ctx, k.cfg.RoundDuration)
	if err != nil {
		return res, fmt.Errorf("keeper: advance after round %d: %w", settled.RoundID, err)
	}
	res.NextRound = &next
	return res, nil
}
