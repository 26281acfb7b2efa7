package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
	"github.com/orionbet/orionkeeper/internal/metrics"
)

// PriceService fronts the price oracle. Every good quote is cached and
// published; when the oracle is down a recent cached quote is served
// instead, marked stale.
type PriceService struct {
	oracle   domain.PriceOracle
	cache    domain.PriceCache // optional
	bus      domain.SignalBus  // optional
	feedID   string
	maxStale time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewPriceService creates a PriceService. cache and bus may be nil.
func NewPriceService(
	oracle domain.PriceOracle,
	cache domain.PriceCache,
	bus domain.SignalBus,
	feedID string,
	maxStale time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		oracle:   oracle,
		cache:    cache,
		bus:      bus,
		feedID:   feedID,
		maxStale: maxStale,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "price_service")),
	}
}

// Latest returns the current price, falling back to the cache.
func (s *PriceService) Latest(ctx context.Context) (domain.PriceQuote, error) {
	q, err := s.oracle.Latest(ctx)
	s.metrics.OracleRequest("latest", err)
	if err == nil {
		s.remember(ctx, q)
		return q, nil
	}
	if cached, ok := s.cached(ctx); ok {
		s.logger.WarnContext(ctx, "oracle unavailable, serving cached price",
			slog.String("error", err.Error()),
			slog.Int64("publish_time", cached.PublishTime),
		)
		return cached, nil
	}
	return domain.PriceQuote{}, fmt.Errorf("price_service: latest: %w: %w", domain.ErrOracleUnavailable, err)
}

// AtTime returns the price published at unixSecs. There is no fallback: a
// caller asking for a specific moment gets that moment or an error.
func (s *PriceService) AtTime(ctx context.Context, unixSecs int64) (domain.PriceQuote, error) {
	q, err := s.oracle.AtTime(ctx, unixSecs)
	s.metrics.OracleRequest("historical", err)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price_service: price at %d: %w: %w", unixSecs, domain.ErrOracleUnavailable, err)
	}
	return q, nil
}

// EndPrice resolves the settlement price for a round that expired at
// expiry: the historical price at expiry, else the latest price.
func (s *PriceService) EndPrice(ctx context.Context, expiry int64) (domain.PriceQuote, error) {
	q, err := s.AtTime(ctx, expiry)
	if err == nil {
		return q, nil
	}
	s.logger.WarnContext(ctx, "historical price unavailable, using latest",
		slog.Int64("expiry", expiry),
		slog.String("error", err.Error()),
	)
	q, err = s.Latest(ctx)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("price_service: end price for %d: %w", expiry, err)
	}
	return q, nil
}

// HandleStreamQuote caches and publishes a quote pushed by the price stream.
func (s *PriceService) HandleStreamQuote(ctx context.Context, q domain.PriceQuote) {
	s.remember(ctx, q)
}

func (s *PriceService) remember(ctx context.Context, q domain.PriceQuote) {
	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, s.feedID, q); err != nil {
			s.logger.WarnContext(ctx, "cache price failed", slog.String("error", err.Error()))
		}
	}
	if s.bus != nil {
		payload, _ := json.Marshal(q)
		if err := s.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
			s.logger.WarnContext(ctx, "publish price failed", slog.String("error", err.Error()))
		}
	}
}

func (s *PriceService) cached(ctx context.Context) (domain.PriceQuote, bool) {
	if s.cache == nil {
		return domain.PriceQuote{}, false
	}
	q, at, err := s.cache.GetQuote(ctx, s.feedID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "read cached price failed", slog.String("error", err.Error()))
		}
		return domain.PriceQuote{}, false
	}
	if s.maxStale > 0 && s.now().Sub(at) > s.maxStale {
		return domain.PriceQuote{}, false
	}
	q.Stale = true
	return q, true
}
