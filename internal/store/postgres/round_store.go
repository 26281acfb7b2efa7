package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orionbet/orionkeeper/internal/domain"
)

// RoundStore implements domain.RoundStore.
type RoundStore struct {
	pool *pgxpool.Pool
}

var _ domain.RoundStore = (*RoundStore)(nil)

func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundColumns = `id, start_price, end_price, expiry_time, settled, up_pool, down_pool,
	outcome, start_tx, settle_tx, created_at, updated_at`

// Upsert writes the latest snapshot of a round. Empty tx hashes never
// overwrite recorded ones.
func (s *RoundStore) Upsert(ctx context.Context, rec domain.RoundRecord) error {
	const query = `
		INSERT INTO rounds (id, start_price, end_price, expiry_time, settled, up_pool, down_pool,
			outcome, start_tx, settle_tx)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			start_price = EXCLUDED.start_price,
			end_price   = EXCLUDED.end_price,
			expiry_time = EXCLUDED.expiry_time,
			settled     = EXCLUDED.settled,
			up_pool     = EXCLUDED.up_pool,
			down_pool   = EXCLUDED.down_pool,
			outcome     = EXCLUDED.outcome,
			start_tx    = COALESCE(NULLIF(EXCLUDED.start_tx, ''), rounds.start_tx),
			settle_tx   = COALESCE(NULLIF(EXCLUDED.settle_tx, ''), rounds.settle_tx),
			updated_at  = NOW()`
	_, err := s.pool.Exec(ctx, query,
		int64(rec.ID), int64(rec.StartPrice), int64(rec.EndPrice), rec.ExpiryTime, rec.Settled,
		int64(rec.UpPool), int64(rec.DownPool), string(rec.Outcome), rec.StartTx, rec.SettleTx,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert round %d: %w", rec.ID, err)
	}
	return nil
}

// Get returns one round or domain.ErrNotFound.
func (s *RoundStore) Get(ctx context.Context, id uint64) (domain.RoundRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, int64(id))
	rec, err := scanRound(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoundRecord{}, fmt.Errorf("postgres: round %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RoundRecord{}, fmt.Errorf("postgres: get round %d: %w", id, err)
	}
	return rec, nil
}

// List returns rounds newest first.
func (s *RoundStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.RoundRecord, error) {
	query, args := listQuery(`SELECT `+roundColumns+` FROM rounds WHERE 1=1`, "created_at", "id DESC", opts, nil)
	return s.query(ctx, "list rounds", query, args...)
}

// ListSettledBefore returns settled rounds last updated before the cutoff,
// oldest first.
func (s *RoundStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.RoundRecord, error) {
	return s.query(ctx, "list settled rounds",
		`SELECT `+roundColumns+` FROM rounds WHERE settled AND updated_at < $1 ORDER BY id`, before)
}

func (s *RoundStore) query(ctx context.Context, op, query string, args ...any) ([]domain.RoundRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.RoundRecord
	for rows.Next() {
		rec, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanRound(row pgx.Row) (domain.RoundRecord, error) {
	var (
		rec                      domain.RoundRecord
		id, start, end, up, down int64
		outcome                  string
	)
	err := row.Scan(&id, &start, &end, &rec.ExpiryTime, &rec.Settled, &up, &down,
		&outcome, &rec.StartTx, &rec.SettleTx, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.RoundRecord{}, err
	}
	rec.ID = uint64(id)
	rec.StartPrice = domain.Price(start)
	rec.EndPrice = domain.Price(end)
	rec.UpPool = uint64(up)
	rec.DownPool = uint64(down)
	rec.Outcome = domain.Side(outcome)
	return rec, nil
}
