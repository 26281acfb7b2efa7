package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// RoundStore persists the advisory round history.
type RoundStore interface {
	Upsert(ctx context.Context, rec RoundRecord) error
	Get(ctx context.Context, id uint64) (RoundRecord, error)
	List(ctx context.Context, opts ListOpts) ([]RoundRecord, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]RoundRecord, error)
}

// ClaimStore persists relayed claims.
type ClaimStore interface {
	Insert(ctx context.Context, rec ClaimRecord) error
	ListByUser(ctx context.Context, user string, opts ListOpts) ([]ClaimRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]ClaimRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
