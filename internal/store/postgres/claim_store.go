package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// ClaimStore implements domain.ClaimStore. Addresses are stored lowercase.
type ClaimStore struct {
	pool *pgxpool.Pool
}

var _ domain.ClaimStore = (*ClaimStore)(nil)

func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{pool: pool}
}

// Insert records a relayed claim. A second claim for the same round and
// user is ignored.
func (s *ClaimStore) Insert(ctx context.Context, rec domain.ClaimRecord) error {
	const query = `
		INSERT INTO claims (round_id, user_addr, payout, tx_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round_id, user_addr) DO NOTHING`
	_, err := s.pool.Exec(ctx, query, int64(rec.RoundID), strings.ToLower(rec.User), int64(rec.Payout), rec.TxHash)
	if err != nil {
		return fmt.Errorf("postgres: insert claim %d/%s: %w", rec.RoundID, rec.User, err)
	}
	return nil
}

func (s *ClaimStore) ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.ClaimRecord, error) {
	query, args := listQuery(
		`SELECT id, round_id, user_addr, payout, tx_hash, created_at FROM claims WHERE user_addr = $1`,
		"created_at", "created_at DESC", opts, []any{strings.ToLower(user)})
	return s.query(ctx, "list claims by user", query, args...)
}

func (s *ClaimStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ClaimRecord, error) {
	return s.query(ctx, "list claims before",
		`SELECT id, round_id, user_addr, payout, tx_hash, created_at FROM claims WHERE created_at < $1 ORDER BY id`,
		before)
}

func (s *ClaimStore) query(ctx context.Context, op, query string, args ...any) ([]domain.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.ClaimRecord
	for rows.Next() {
		var (
			rec             domain.ClaimRecord
			roundID, payout int64
		)
		if err := rows.Scan(&rec.ID, &roundID, &rec.User, &payout, &rec.TxHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		rec.RoundID, rec.Payout = uint64(roundID), uint64(payout)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}
