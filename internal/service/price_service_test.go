package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

type fakeOracle struct {
	latest     domain.PriceQuote
	latestErr  error
	history    domain.PriceQuote
	historyErr error
	askedAt    int64
}

func (f *fakeOracle) Latest(context.Context) (domain.PriceQuote, error) {
	return f.latest, f.latestErr
}

func (f *fakeOracle) AtTime(_ context.Context, ts int64) (domain.PriceQuote, error) {
	f.askedAt = ts
	return f.history, f.historyErr
}

type memCache struct {
	mu sync.Mutex
	q  map[string]domain.PriceQuote
	at map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{q: map[string]domain.PriceQuote{}, at: map[string]time.Time{}}
}

func (c *memCache) SetQuote(_ context.Context, feed string, q domain.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q[feed], c.at[feed] = q, time.Now()
	return nil
}

func (c *memCache) GetQuote(_ context.Context, feed string) (domain.PriceQuote, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.q[feed]
	if !ok {
		return domain.PriceQuote{}, time.Time{}, domain.ErrNotFound
	}
	return q, c.at[feed], nil
}

type recordingBus struct {
	mu   sync.Mutex
	msgs map[string]int
}

func (b *recordingBus) Publish(_ context.Context, ch string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.msgs == nil {
		b.msgs = map[string]int{}
	}
	b.msgs[ch]++
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func newService(o domain.PriceOracle, c domain.PriceCache, b domain.SignalBus) *PriceService {
	return NewPriceService(o, c, b, "btc", time.Minute, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEndPricePrefersHistorical(t *testing.T) {
	o := &fakeOracle{
		latest:  domain.PriceQuote{Price: 65200, PublishTime: 1_700_000_400},
		history: domain.PriceQuote{Price: 65120.5, PublishTime: 1_700_000_300},
	}
	q, err := newService(o, nil, nil).EndPrice(context.Background(), 1_700_000_300)
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 65120.5 || o.askedAt != 1_700_000_300 {
		t.Fatalf("got %+v asked at %d", q, o.askedAt)
	}
}

func TestEndPriceFallsBackToLatest(t *testing.T) {
	o := &fakeOracle{
		latest:     domain.PriceQuote{Price: 65200},
		historyErr: errors.New("404"),
	}
	q, err := newService(o, nil, nil).EndPrice(context.Background(), 1_700_000_300)
	if err != nil {
		t.Fatal(err)
	}
	if q.Price != 65200 {
		t.Fatalf("Price = %v, want latest 65200", q.Price)
	}
}

func TestEndPriceFailsWhenOracleDown(t *testing.T) {
	o := &fakeOracle{latestErr: errors.New("down"), historyErr: errors.New("down")}
	_, err := newService(o, newMemCache(), nil).EndPrice(context.Background(), 1)
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}

func TestLatestServesStaleCache(t *testing.T) {
	o := &fakeOracle{latest: domain.PriceQuote{Price: 65000, PublishTime: 10}}
	cache := newMemCache()
	bus := &recordingBus{}
	svc := newService(o, cache, bus)

	if _, err := svc.Latest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if bus.msgs[domain.ChannelPrices] != 1 {
		t.Fatalf("published %d price updates", bus.msgs[domain.ChannelPrices])
	}

	o.latestErr = errors.New("timeout")
	q, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !q.Stale || q.Price != 65000 {
		t.Fatalf("got %+v, want stale 65000", q)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := svc.Latest(context.Background()); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable once the cache is too old", err)
	}
}
