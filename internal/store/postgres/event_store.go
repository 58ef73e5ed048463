package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The BIGSERIAL seq
// column is the journal order.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventStore = (*EventStore)(nil)

const insertEventSQL = `
	INSERT INTO events (id, kind, market_id, principal, amount, option, title, at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// insertEvent appends ev to the journal inside tx. Mutating stores call this
// so the event commits or rolls back with the rows it describes.
func insertEvent(ctx context.Context, tx pgx.Tx, ev domain.Event) error {
	_, err := tx.Exec(ctx, insertEventSQL,
		ev.ID, string(ev.Kind), ev.MarketID, ev.Principal.String(),
		ev.Amount, ev.Option, ev.Title, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert %s event: %w", ev.Kind, err)
	}
	return nil
}

// Append journals ev on its own. Grant operations use this; their only
// mutation is the event itself.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	_, err := s.pool.Exec(ctx, insertEventSQL,
		ev.ID, string(ev.Kind), ev.MarketID, ev.Principal.String(),
		ev.Amount, ev.Option, ev.Title, ev.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: append %s event: %w", ev.Kind, err)
	}
	return nil
}

// List returns journal events in seq order with optional market and
// timestamp filters.
func (s *EventStore) List(ctx context.Context, opts domain.EventListOpts) ([]domain.Event, error) {
	query := `SELECT seq, id, kind, market_id, principal, amount, option, title, at FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.MarketID != nil {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, *opts.MarketID)
		argIdx++
	}
	if opts.Before != nil {
		query += fmt.Sprintf(" AND at < $%d", argIdx)
		args = append(args, *opts.Before)
		argIdx++
	}
	if opts.AfterSeq != nil {
		query += fmt.Sprintf(" AND seq > $%d", argIdx)
		args = append(args, *opts.AfterSeq)
		argIdx++
	}

	query += " ORDER BY seq"

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
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var (
			e    domain.Event
			kind string
			prin string
		)
		if err := rows.Scan(
			&e.Seq, &e.ID, &kind, &e.MarketID, &prin,
			&e.Amount, &e.Option, &e.Title, &e.At,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		p, err := domain.ParsePrincipal(prin)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse principal %q: %w", prin, err)
		}
		e.Principal = p
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
