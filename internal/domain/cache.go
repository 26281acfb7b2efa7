package domain

import (
	"context"
	"time"
)

// PriceCache keeps the last good quote per feed.
type PriceCache interface {
	SetQuote(ctx context.Context, feedID string, q PriceQuote) error
	GetQuote(ctx context.Context, feedID string) (q PriceQuote, cachedAt time.Time, err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StreamMessage is one entry of an event log.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventLog is a bounded, ordered log that survives subscriber restarts.
type EventLog interface {
	Append(ctx context.Context, stream string, payload []byte) error
	Read(ctx context.Context, stream string, afterID string, count int) ([]StreamMessage, error)
	Recent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
