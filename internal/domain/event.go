package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind names the journal event types. One event is recorded per
// successful mutating operation.
type EventKind string

const (
	EventMarketCreated           EventKind = "market_created"
	EventBetPlaced               EventKind = "bet_placed"
	EventOptionCountAccessGrant  EventKind = "option_count_access_granted"
	EventBetAccessGrant          EventKind = "bet_access_granted"
	EventPredictionClosed        EventKind = "prediction_closed"
)

// Event is an append-only journal entry. Events carry operation identifiers
// (ids, principals, public amounts) and never plaintext choices or tally
// values. Seq is the journal position, assigned by the store on append and
// populated on reads; global event order is journal order.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq,omitempty"`
	Kind      EventKind `json:"kind"`
	MarketID  uint64    `json:"market_id"`
	Principal Principal `json:"principal"`
	Amount    uint64    `json:"amount,omitempty"`
	Option    *uint32   `json:"option,omitempty"`
	Title     string    `json:"title,omitempty"`
	At        time.Time `json:"at"`
}

func newEvent(kind EventKind, marketID uint64, principal Principal) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		MarketID:  marketID,
		Principal: principal,
		At:        time.Now().UTC(),
	}
}

// NewMarketCreated records a market creation by its creator.
func NewMarketCreated(marketID uint64, creator Principal, title string) Event {
	ev := newEvent(EventMarketCreated, marketID, creator)
	ev.Title = title
	return ev
}

// NewBetPlaced records a bet with its public amount. The encrypted choice is
// deliberately absent.
func NewBetPlaced(marketID uint64, participant Principal, amount uint64) Event {
	ev := newEvent(EventBetPlaced, marketID, participant)
	ev.Amount = amount
	return ev
}

// NewOptionCountAccessGranted records a tally decrypt grant.
func NewOptionCountAccessGranted(marketID uint64, grantee Principal) Event {
	return newEvent(EventOptionCountAccessGrant, marketID, grantee)
}

// NewBetAccessGranted records a bet decrypt grant.
func NewBetAccessGranted(marketID uint64, grantee Principal) Event {
	return newEvent(EventBetAccessGrant, marketID, grantee)
}

// NewPredictionClosed records a market close with the declared winning
// option and the closing principal.
func NewPredictionClosed(marketID uint64, winning uint32, closer Principal) Event {
	ev := newEvent(EventPredictionClosed, marketID, closer)
	ev.Option = &winning
	return ev
}

// EventSink receives journal events after their operation commits. Delivery
// is at-least-once and failures must not affect the committed operation.
type EventSink interface {
	Deliver(ctx context.Context, ev Event) error
	Name() string
}
