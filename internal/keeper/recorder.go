package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// The helpers below write advisory copies of what happened on chain.
// None of them fail the operation that called them.

func isLockHeld(err error) bool { return errors.Is(err, domain.ErrLockHeld) }

func (k *Keeper) recordRound(ctx context.Context, rec domain.RoundRecord) {
	if k.rounds == nil {
		return
	}
	if err := k.rounds.Upsert(ctx, rec); err != nil {
		k.logger.ErrorContext(ctx, "round history write failed",
			slog.Uint64("round_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (k *Keeper) recordClaim(ctx context.Context, rec domain.ClaimRecord) {
	if k.claims == nil {
		return
	}
	if err := k.claims.Insert(ctx, rec); err != nil {
		k.logger.ErrorContext(ctx, "claim history write failed",
			slog.Uint64("round_id", rec.RoundID),
			slog.String("user", rec.User),
			slog.String("error", err.Error()),
		)
	}
}

func (k *Keeper) auditLog(ctx context.Context, event string, detail map[string]any) {
	if k.audit == nil {
		return
	}
	if err := k.audit.Log(ctx, event, detail); err != nil {
		k.logger.ErrorContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// publish sends ev to live subscribers and appends it to the round event log.
func (k *Keeper) publish(ctx context.Context, ev domain.RoundEvent) {
	if k.bus == nil && k.events == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if k.bus != nil {
		if err := k.bus.Publish(ctx, domain.ChannelRounds, payload); err != nil {
			k.logger.WarnContext(ctx, "round event publish failed", slog.String("error", err.Error()))
		}
	}
	if k.events != nil {
		if err := k.events.Append(ctx, domain.ChannelRounds, payload); err != nil {
			k.logger.WarnContext(ctx, "round event append failed", slog.String("error", err.Error()))
		}
	}
}

func (k *Keeper) notify(ctx context.Context, event, title, message string) {
	if k.notifier == nil {
		return
	}
	if err := k.notifier.Notify(ctx, event, title, message); err != nil {
		k.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// RecentEvents returns up to count round events, newest first.
func (k *Keeper) RecentEvents(ctx context.Context, count int) ([]domain.RoundEvent, error) {
	if k.events == nil {
		return nil, domain.ErrNotConfigured
	}
	msgs, err := k.events.Recent(ctx, domain.ChannelRounds, count)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RoundEvent, 0, len(msgs))
	for _, m := range msgs {
		var ev domain.RoundEvent
		if err := json.Unmarshal(m.Payload, &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
