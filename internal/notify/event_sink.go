package notify

import (
	"context"
	"fmt"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// EventSink adapts the Notifier to the journal event stream. Each delivered
// event is rendered into a short operator-readable message keyed by its kind,
// so the notifier's allow-list applies unchanged.
type EventSink struct {
	notifier *Notifier
}

// NewEventSink wraps n as a domain.EventSink.
func NewEventSink(n *Notifier) *EventSink {
	return &EventSink{notifier: n}
}

// Deliver formats ev and forwards it through the notifier's kind filter.
func (s *EventSink) Deliver(ctx context.Context, ev domain.Event) error {
	title, message := formatEvent(ev)
	return s.notifier.Notify(ctx, string(ev.Kind), title, message)
}

// Name identifies the sink in logs.
func (s *EventSink) Name() string { return "notify" }

var _ domain.EventSink = (*EventSink)(nil)

// formatEvent renders an event's public fields into a channel message.
func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Kind {
	case domain.EventMarketCreated:
		return "Market created",
			fmt.Sprintf("Market #%d %q opened by %s", ev.MarketID, ev.Title, ev.Principal)
	case domain.EventBetPlaced:
		return "Bet placed",
			fmt.Sprintf("Market #%d: %s staked %d", ev.MarketID, ev.Principal, ev.Amount)
	case domain.EventOptionCountAccessGrant:
		return "Tally access granted",
			fmt.Sprintf("Market #%d: tallies readable by %s", ev.MarketID, ev.Principal)
	case domain.EventBetAccessGrant:
		return "Bet access granted",
			fmt.Sprintf("Market #%d: own bet readable by %s", ev.MarketID, ev.Principal)
	case domain.EventPredictionClosed:
		if ev.Option != nil {
			return "Prediction closed",
				fmt.Sprintf("Market #%d closed by %s with winning option %d", ev.MarketID, ev.Principal, *ev.Option)
		}
		return "Prediction closed",
			fmt.Sprintf("Market #%d closed by %s", ev.MarketID, ev.Principal)
	default:
		return string(ev.Kind),
			fmt.Sprintf("Market #%d: %s", ev.MarketID, ev.Principal)
	}
}
