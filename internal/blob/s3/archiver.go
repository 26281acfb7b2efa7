package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 64 * 1024 * 1024

// RoundSource lists rounds that are old enough to archive.
type RoundSource interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.RoundRecord, error)
}

// ClaimSource lists claims that are old enough to archive.
type ClaimSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ClaimRecord, error)
}

// ObjectStore is the subset of Writer the archiver needs.
type ObjectStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies settled history to JSONL files under
// archive/{kind}/YYYY-MM[-n].jsonl. Rows are never deleted here.
type Archiver struct {
	store  ObjectStore
	rounds RoundSource
	claims ClaimSource
	audit  domain.AuditStore // optional
}

var _ domain.Archiver = (*Archiver)(nil)

func NewArchiver(store ObjectStore, rounds RoundSource, claims ClaimSource, audit domain.AuditStore) *Archiver {
	return &Archiver{store: store, rounds: rounds, claims: claims, audit: audit}
}

type roundLine struct {
	ID         uint64    `json:"id"`
	StartPrice string    `json:"startPrice"`
	EndPrice   string    `json:"endPrice"`
	ExpiryTime int64     `json:"expiryTime"`
	UpPool     uint64    `json:"upPool"`
	DownPool   uint64    `json:"downPool"`
	Outcome    string    `json:"outcome"`
	StartTx    string    `json:"startTx,omitempty"`
	SettleTx   string    `json:"settleTx,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type claimLine struct {
	RoundID   uint64    `json:"roundId"`
	User      string    `json:"user"`
	Payout    uint64    `json:"payout"`
	TxHash    string    `json:"txHash"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArchiveRounds uploads every settled round last touched before the cutoff.
func (a *Archiver) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.rounds.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds: %w", err)
	}
	lines := make([]roundLine, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, roundLine{
			ID:         r.ID,
			StartPrice: r.StartPrice.String(),
			EndPrice:   r.EndPrice.String(),
			ExpiryTime: r.ExpiryTime,
			UpPool:     r.UpPool,
			DownPool:   r.DownPool,
			Outcome:    string(r.Outcome),
			StartTx:    r.StartTx,
			SettleTx:   r.SettleTx,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return archive(ctx, a, "rounds", before, lines)
}

// ArchiveClaims uploads every claim recorded before the cutoff.
func (a *Archiver) ArchiveClaims(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.claims.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive claims: %w", err)
	}
	lines := make([]claimLine, 0, len(recs))
	for _, c := range recs {
		lines = append(lines, claimLine{
			RoundID:   c.RoundID,
			User:      c.User,
			Payout:    c.Payout,
			TxHash:    c.TxHash,
			CreatedAt: c.CreatedAt,
		})
	}
	return archive(ctx, a, "claims", before, lines)
}

func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, lines []T) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	path, err := a.freePath(ctx, kind, before)
	if err != nil {
		return 0, err
	}

	if len(buf) > multipartThreshold {
		err = a.store.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		err = a.store.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	count := int64(len(lines))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive %s audit: %w", kind, err)
		}
	}
	return count, nil
}

// freePath returns the first unused archive key for the cutoff month, so a
// second run in the same month never overwrites the first.
func (a *Archiver) freePath(ctx context.Context, kind string, before time.Time) (string, error) {
	for n := 0; n < 100; n++ {
		path := archivePath(kind, before, n)
		exists, err := a.store.Exists(ctx, path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
	}
	return "", fmt.Errorf("s3blob: no free archive path for %s %s", kind, before.Format("2006-01"))
}

func archivePath(kind string, before time.Time, n int) string {
	if n == 0 {
		return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
	}
	return fmt.Sprintf("archive/%s/%s-%d.jsonl", kind, before.Format("2006-01"), n)
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
