package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive MarketStatus = "active"
	MarketStatusClosed MarketStatus = "closed"
)

// Option count bounds for a market.
const (
	MinOptions = 2
	MaxOptions = 4
)

// Market is a single prediction instance. IDs are assigned densely from 0 in
// creation order and never reused. Options are ordered and immutable; the
// tally at index i counts bets whose encrypted choice equals i.
type Market struct {
	ID               uint64
	Title            string
	Options          []string
	Status           MarketStatus
	TotalStake       uint64
	ParticipantCount uint64
	Result           *uint32
	Creator          Principal
	Tallies          []fhe.Cipher[uint32]
	CreatedAt        time.Time
	ClosedAt         *time.Time
}

// ValidateMarketInput checks create_market arguments. All violations are
// ErrInvalidArgument; nothing is mutated on failure.
func ValidateMarketInput(title string, options []string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidArgument)
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return fmt.Errorf("%w: got %d options, want between %d and %d",
			ErrInvalidArgument, len(options), MinOptions, MaxOptions)
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d must not be empty", ErrInvalidArgument, i)
		}
	}
	return nil
}

// MarketView is the externally visible market representation. It carries no
// ciphertext handles; tallies are read through their own operation.
type MarketView struct {
	ID               uint64       `json:"id"`
	Title            string       `json:"title"`
	Options          []string     `json:"options"`
	Status           MarketStatus `json:"status"`
	TotalStake       uint64       `json:"total_stake"`
	ParticipantCount uint64       `json:"participant_count"`
	Result           *uint32      `json:"result,omitempty"`
	Creator          Principal    `json:"creator"`
	CreatedAt        time.Time    `json:"created_at"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
}

// View projects the market into its external representation.
func (m Market) View() MarketView {
	return MarketView{
		ID:               m.ID,
		Title:            m.Title,
		Options:          m.Options,
		Status:           m.Status,
		TotalStake:       m.TotalStake,
		ParticipantCount: m.ParticipantCount,
		Result:           m.Result,
		Creator:          m.Creator,
		CreatedAt:        m.CreatedAt,
		ClosedAt:         m.ClosedAt,
	}
}

// TallyHandles returns the current ciphertext handles in option order.
func (m Market) TallyHandles() []fhe.Handle {
	out := make([]fhe.Handle, len(m.Tallies))
	for i, c := range m.Tallies {
		out[i] = c.Handle()
	}
	return out
}
