// Package keeper runs the round lifecycle of the betting contract: it
// decides when a round must be started or settled, submits those
// transactions with the keeper key, and relays user-signed claims.
//
// The contract is the only source of truth. Every operation re-reads chain
// state before acting, and business-rule rejections (round still active,
// already settled) are returned as result statuses rather than errors.
package keeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/metrics"
)

// PriceSource supplies the prices used to start and settle rounds.
type PriceSource interface {
	Latest(ctx context.Context) (domain.PriceQuote, error)
	EndPrice(ctx context.Context, expiry int64) (domain.PriceQuote, error)
}

// ClaimVerifier checks a user's claim authorisation.
type ClaimVerifier interface {
	VerifyClaim(roundID uint64, user string, deadline int64, sig []byte) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds keeper tunables.
type Config struct {
	RoundDuration time.Duration
	Cooldown      time.Duration // pause between a settlement and the next start
	Lookback      int           // rounds scanned for pending settlements
	LockTTL       time.Duration
	FeeBps        uint16 // used by contract initialisation
	Treasury      string // empty means the keeper address
	ClaimDedupTTL time.Duration
}

// Deps are the keeper's collaborators. Chain and Prices are required;
// Tx and Verifier are required only by the operations that use them and
// their absence surfaces as domain.ErrNotConfigured. Everything else is
// optional.
type Deps struct {
	Chain    domain.ChainReader
	Tx       domain.ChainWriter
	Prices   PriceSource
	Verifier ClaimVerifier
	Locks    domain.LockManager
	Rounds   domain.RoundStore
	Claims   domain.ClaimStore
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Events   domain.EventLog
	Notifier Notifier
	Metrics  *metrics.Metrics
	Now      func() time.Time
	Logger   *slog.Logger
}

// Keeper coordinates rounds on the betting contract.
type Keeper struct {
	chain    domain.ChainReader
	tx       domain.ChainWriter
	prices   PriceSource
	verifier ClaimVerifier
	locks    domain.LockManager
	rounds   domain.RoundStore
	claims   domain.ClaimStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	events   domain.EventLog
	notifier Notifier
	metrics  *metrics.Metrics

	cfg    Config
	dedup  *Dedup
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Keeper, filling zero config values with defaults.
func New(d Deps, cfg Config) *Keeper {
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = 5 * time.Minute
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.ClaimDedupTTL <= 0 {
		cfg.ClaimDedupTTL = 30 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Keeper{
		chain:    d.Chain,
		tx:       d.Tx,
		prices:   d.Prices,
		verifier: d.Verifier,
		locks:    d.Locks,
		rounds:   d.Rounds,
		claims:   d.Claims,
		audit:    d.Audit,
		bus:      d.Bus,
		events:   d.Events,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		cfg:      cfg,
		dedup:    NewDedup(cfg.ClaimDedupTTL, d.Now),
		now:      d.Now,
		logger:   d.Logger.With(slog.String("component", "keeper")),
	}
}

// RoundDuration is the configured default round length.
func (k *Keeper) RoundDuration() time.Duration { return k.cfg.RoundDuration }

func (k *Keeper) unix() int64 { return k.now().Unix() }

// lock takes the named distributed lock. Without a lock manager, or when
// the lock backend itself fails, it proceeds unlocked: the contract still
// rejects the loser of any race. Only a lock held by someone else is
// reported, as domain.ErrLockHeld.
func (k *Keeper) lock(ctx context.Context, name string) (func(), error) {
	noop := func() {}
	if k.locks == nil {
		return noop, nil
	}
	unlock, err := k.locks.Acquire(ctx, name, k.cfg.LockTTL)
	if err == nil {
		return unlock, nil
	}
	if isLockHeld(err) {
		return nil, err
	}
	k.logger.WarnContext(ctx, "lock backend unavailable, continuing unlocked",
		slog.String("lock", name),
		slog.String("error", err.Error()),
	)
	return noop, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
