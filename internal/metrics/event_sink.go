package metrics

import (
	"context"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// EventSink counts journal events by kind. It never fails delivery.
type EventSink struct {
	m *Metrics
}

func NewEventSink(m *Metrics) *EventSink {
	return &EventSink{m: m}
}

var _ domain.EventSink = (*EventSink)(nil)

func (s *EventSink) Deliver(_ context.Context, ev domain.Event) error {
	s.m.Events.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (s *EventSink) Name() string { return "metrics" }
