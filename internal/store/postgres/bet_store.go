package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// PostgreSQL error codes surfaced as domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.BetStore = (*BetStore)(nil)

// Get retrieves the bet a participant holds on a market.
func (s *BetStore) Get(ctx context.Context, marketID uint64, participant domain.Principal) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT market_id, participant, choice_handle, amount, placed_at
		FROM bets WHERE market_id = $1 AND participant = $2`,
		marketID, participant.String(),
	)

	var (
		b      domain.Bet
		part   string
		handle string
	)
	if err := row.Scan(&b.MarketID, &part, &handle, &b.Amount, &b.PlacedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, fmt.Errorf("postgres: bet %d/%s: %w", marketID, participant, domain.ErrNotFound)
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d/%s: %w", marketID, participant, err)
	}

	p, err := domain.ParsePrincipal(part)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: parse participant %q: %w", part, err)
	}
	b.Participant = p
	b.Choice = fhe.NewCipher[uint32](fhe.Handle(handle))
	return b, nil
}

// Record stores the bet, bumps the owning market's aggregates, replaces its
// tally handles, and records ev, all in one transaction. A duplicate
// (market, participant) key maps to ErrAlreadyExists.
func (s *BetStore) Record(ctx context.Context, b domain.Bet, tallies []fhe.Cipher[uint32], ev domain.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO bets (market_id, participant, choice_handle, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.MarketID, b.Participant.String(), string(b.Choice.Handle()), b.Amount, b.PlacedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return fmt.Errorf("postgres: bet %d/%s: %w", b.MarketID, b.Participant, domain.ErrAlreadyExists)
			case pgForeignKeyViolation:
				return fmt.Errorf("postgres: market %d: %w", b.MarketID, domain.ErrNotFound)
			}
		}
		return fmt.Errorf("postgres: insert bet: %w", err)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE markets
		SET total_stake = total_stake + $2,
		    participant_count = participant_count + 1,
		    tally_handles = $3
		WHERE id = $1`,
		b.MarketID, b.Amount, handleStrings(tallies),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d aggregates: %w", b.MarketID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("postgres: market %d: %w", b.MarketID, domain.ErrNotFound)
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
