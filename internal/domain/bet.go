package domain

import (
	"time"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// Bet is a single participant's stake on a market. At most one bet exists
// per (market, participant); choice and amount are immutable once recorded.
// The choice is an opaque ciphertext the ledger never inspects.
type Bet struct {
	MarketID    uint64
	Participant Principal
	Choice      fhe.Cipher[uint32]
	Amount      uint64
	PlacedAt    time.Time
}

// BetView is the externally visible bet representation. The choice appears
// only as its ciphertext handle; plaintext choices are reachable solely
// through a capability decrypt by a granted principal.
type BetView struct {
	MarketID     uint64     `json:"market_id"`
	Participant  Principal  `json:"participant"`
	ChoiceHandle fhe.Handle `json:"choice_handle"`
	Amount       uint64     `json:"amount"`
	PlacedAt     time.Time  `json:"placed_at"`
}

// View projects the bet into its external representation.
func (b Bet) View() BetView {
	return BetView{
		MarketID:     b.MarketID,
		Participant:  b.Participant,
		ChoiceHandle: b.Choice.Handle(),
		Amount:       b.Amount,
		PlacedAt:     b.PlacedAt,
	}
}
