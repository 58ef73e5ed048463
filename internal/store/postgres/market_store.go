package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketCols = `id, title, options, status, total_stake, participant_count,
	result, creator, tally_handles, created_at, closed_at`

// Append stores m under the next dense id and records ev in the same
// transaction. The table lock keeps the id sequence gapless when several
// writers race on creation.
func (s *MarketStore) Append(ctx context.Context, m domain.Market, ev domain.Event) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "LOCK TABLE markets IN EXCLUSIVE MODE"); err != nil {
		return 0, fmt.Errorf("postgres: lock markets: %w", err)
	}

	var id uint64
	if err := tx.QueryRow(ctx, "SELECT COALESCE(MAX(id) + 1, 0) FROM markets").Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next market id: %w", err)
	}

	const query = `
		INSERT INTO markets (
			id, title, options, status, total_stake, participant_count,
			result, creator, tally_handles, created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.Exec(ctx, query,
		id, m.Title, m.Options, string(m.Status),
		m.TotalStake, m.ParticipantCount, m.Result,
		m.Creator.String(), handleStrings(m.Tallies),
		m.CreatedAt, m.ClosedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert market: %w", err)
	}

	ev.MarketID = id
	if err := insertEvent(ctx, tx, ev); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit market %d: %w", id, err)
	}
	return id, nil
}

// Get retrieves a market by id.
func (s *MarketStore) Get(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets in id order with pagination.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets := make([]domain.Market, 0)
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Close transitions an active market to closed with the given result and
// records ev in the same transaction.
func (s *MarketStore) Close(ctx context.Context, id uint64, result uint32, closedAt time.Time, ev domain.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE markets
		SET status = 'closed', result = $2, closed_at = $3
		WHERE id = $1 AND status = 'active'`,
		id, result, closedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: close market %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		// Either the market does not exist or it is no longer active.
		var status string
		err := tx.QueryRow(ctx, "SELECT status FROM markets WHERE id = $1", id).Scan(&status)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: close market %d: %w", id, err)
		}
		return fmt.Errorf("postgres: market %d is %s: %w", id, status, domain.ErrInvalidState)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m       domain.Market
		status  string
		creator string
		handles []string
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Options, &status,
		&m.TotalStake, &m.ParticipantCount, &m.Result,
		&creator, &handles, &m.CreatedAt, &m.ClosedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = domain.MarketStatus(status)
	p, err := domain.ParsePrincipal(creator)
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: parse creator %q: %w", creator, err)
	}
	m.Creator = p
	m.Tallies = cipherSlice(handles)
	return m, nil
}

// handleStrings flattens tally ciphers to their handle strings, ordered by
// option index.
func handleStrings(tallies []fhe.Cipher[uint32]) []string {
	out := make([]string, len(tallies))
	for i, c := range tallies {
		out[i] = string(c.Handle())
	}
	return out
}

// cipherSlice rebuilds tally ciphers from stored handle strings.
func cipherSlice(handles []string) []fhe.Cipher[uint32] {
	out := make([]fhe.Cipher[uint32], len(handles))
	for i, h := range handles {
		out[i] = fhe.NewCipher[uint32](fhe.Handle(h))
	}
	return out
}
