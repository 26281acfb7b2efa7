package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

const (
	keeperAddr = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	t0         = int64(1_700_000_000)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Unix(t0, 0)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeChain is an in-memory betting contract.
type fakeChain struct {
	mu          sync.Mutex
	clock       *clock
	current     uint64
	rounds      map[uint64]domain.Round
	bets        map[string]domain.UserBet
	fee         uint64
	initialized bool

	readErr    error // CurrentRoundID fails
	lagReads   bool  // rounds opened by StartRound stay invisible to CurrentRoundID
	hidden     uint64
	expirySkew int64 // contract clock ahead of the keeper's
	settleErr  error // Settle fails without settling
	settleRace bool  // someone else settles just before our Settle lands

	settleCalls, startCalls, claimCalls, initCalls int
}

func newFakeChain(c *clock) *fakeChain {
	return &fakeChain{
		clock:       c,
		rounds:      make(map[uint64]domain.Round),
		bets:        make(map[string]domain.UserBet),
		fee:         200,
		initialized: true,
	}
}

func betKey(id uint64, user string) string { return fmt.Sprintf("%d:%s", id, strings.ToLower(user)) }

// addRound appends a round and makes it current.
func (f *fakeChain) addRound(r domain.Round) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current++
	r.ID = f.current
	f.rounds[r.ID] = r
}

func (f *fakeChain) addBet(b domain.UserBet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bets[betKey(b.RoundID, b.User)] = b
}

func (f *fakeChain) round(id uint64) domain.Round {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rounds[id]
}

func (f *fakeChain) CurrentRoundID(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.current - f.hidden, nil
}

func (f *fakeChain) GetRound(_ context.Context, id uint64) (domain.Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	return r, nil
}

func (f *fakeChain) GetUserBet(_ context.Context, id uint64, user string) (domain.UserBet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[betKey(id, user)]
	if !ok {
		return domain.UserBet{RoundID: id, User: user}, domain.ErrNoBet
	}
	return b, nil
}

func (f *fakeChain) FeeBps(context.Context) (uint64, error) { return f.fee, nil }

func (f *fakeChain) Initialized(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized, nil
}

func (f *fakeChain) Balance(context.Context, string) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeChain) Address() string { return keeperAddr }

func (f *fakeChain) Initialize(context.Context, string, uint16, string) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initialized {
		return domain.TxReceipt{}, fmt.Errorf("execution reverted: %w", domain.ErrTxReverted)
	}
	f.initialized = true
	return domain.TxReceipt{Hash: "0xinit"}, nil
}

func (f *fakeChain) StartRound(_ context.Context, p domain.Price, secs uint64) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if r, ok := f.rounds[f.current]; ok && !r.Settled {
		return domain.TxReceipt{}, fmt.Errorf("round active: %w", domain.ErrTxReverted)
	}
	f.current++
	if f.lagReads {
		f.hidden++
	}
	f.rounds[f.current] = domain.Round{
		ID:         f.current,
		StartPrice: p,
		ExpiryTime: f.clock.Now().Unix() + int64(secs) + f.expirySkew,
	}
	return domain.TxReceipt{Hash: fmt.Sprintf("0xstart%d", f.current)}, nil
}

func (f *fakeChain) Settle(_ context.Context, id uint64, end domain.Price) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	r := f.rounds[id]
	if f.settleRace {
		r.Settled, r.EndPrice = true, end
		f.rounds[id] = r
		return domain.TxReceipt{}, fmt.Errorf("already settled: %w", domain.ErrTxReverted)
	}
	if f.settleErr != nil {
		return domain.TxReceipt{}, f.settleErr
	}
	if r.Settled {
		return domain.TxReceipt{}, fmt.Errorf("already settled: %w", domain.ErrTxReverted)
	}
	r.Settled, r.EndPrice = true, end
	f.rounds[id] = r
	return domain.TxReceipt{Hash: fmt.Sprintf("0xsettle%d", id)}, nil
}

func (f *fakeChain) ClaimFor(_ context.Context, id uint64, user string, _ int64, _ []byte) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	k := betKey(id, user)
	b := f.bets[k]
	if b.Claimed {
		return domain.TxReceipt{}, fmt.Errorf("already claimed: %w", domain.ErrTxReverted)
	}
	b.Claimed = true
	f.bets[k] = b
	return domain.TxReceipt{Hash: fmt.Sprintf("0xclaim%d", id)}, nil
}

type fakePrices struct {
	latest     domain.PriceQuote
	historical map[int64]domain.PriceQuote
	err        error
}

func (p *fakePrices) Latest(context.Context) (domain.PriceQuote, error) {
	if p.err != nil {
		return domain.PriceQuote{}, p.err
	}
	return p.latest, nil
}

func (p *fakePrices) EndPrice(_ context.Context, expiry int64) (domain.PriceQuote, error) {
	if p.err != nil {
		return domain.PriceQuote{}, p.err
	}
	if q, ok := p.historical[expiry]; ok {
		return q, nil
	}
	return p.latest, nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: make(map[string]bool)} }

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held[key] {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type memRounds struct {
	mu   sync.Mutex
	recs map[uint64]domain.RoundRecord
}

func (m *memRounds) Upsert(_ context.Context, rec domain.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = make(map[uint64]domain.RoundRecord)
	}
	m.recs[rec.ID] = rec
	return nil
}

func (m *memRounds) Get(_ context.Context, id uint64) (domain.RoundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return domain.RoundRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memRounds) List(context.Context, domain.ListOpts) ([]domain.RoundRecord, error) {
	return nil, errors.New("not implemented")
}

func (m *memRounds) ListSettledBefore(context.Context, time.Time) ([]domain.RoundRecord, error) {
	return nil, errors.New("not implemented")
}

type memClaims struct {
	mu   sync.Mutex
	recs []domain.ClaimRecord
}

func (m *memClaims) Insert(_ context.Context, rec domain.ClaimRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memClaims) ListByUser(context.Context, string, domain.ListOpts) ([]domain.ClaimRecord, error) {
	return m.recs, nil
}

func (m *memClaims) ListBefore(context.Context, time.Time) ([]domain.ClaimRecord, error) {
	return nil, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBus) Publish(_ context.Context, ch string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ch+" "+string(payload))
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

type harness struct {
	k      *Keeper
	chain  *fakeChain
	prices *fakePrices
	locks  *fakeLocks
	rounds *memRounds
	claims *memClaims
	bus    *recordingBus
	clock  *clock
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func quote(p float64) domain.PriceQuote {
	return domain.PriceQuote{Price: p, PublishTime: t0, PriceID: "feed"}
}

func newHarness(verifier ClaimVerifier) *harness {
	c := newClock()
	h := &harness{
		chain:  newFakeChain(c),
		prices: &fakePrices{latest: quote(10), historical: map[int64]domain.PriceQuote{}},
		locks:  newFakeLocks(),
		rounds: &memRounds{},
		claims: &memClaims{},
		bus:    &recordingBus{},
		clock:  c,
	}
	h.k = New(Deps{
		Chain:    h.chain,
		Tx:       h.chain,
		Prices:   h.prices,
		Verifier: verifier,
		Locks:    h.locks,
		Rounds:   h.rounds,
		Claims:   h.claims,
		Bus:      h.bus,
		Now:      c.Now,
		Logger:   discardLogger(),
	}, Config{
		RoundDuration: 5 * time.Minute,
		FeeBps:        200,
	})
	return h
}

func mustPrice(f float64) domain.Price {
	p, err := domain.PriceFromFloat(f)
	if err != nil {
		panic(err)
	}
	return p
}
