// Package pipeline runs the keeper's periodic background jobs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// Archiver copies history older than the retention window to cold storage.
type Archiver struct {
	blob          domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

func NewArchiver(blob domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:          blob,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives rounds and claims older than the retention window once.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().AddDate(0, 0, -a.retentionDays)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	rounds, err := a.blob.ArchiveRounds(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive rounds before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	claims, err := a.blob.ArchiveClaims(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive claims before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("rounds", rounds),
		slog.Int64("claims", claims),
	)
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule (UTC) until ctx is
// cancelled, e.g. "0 3 1 * *" for 03:00 on the first of each month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(a.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: cron %q: %w", cronExpr, err)
		}
		a.logger.Debug("archiver waiting", slog.Time("next_run", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
