package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// EventService defines the journal read the event handler requires from the
// engine.
type EventService interface {
	ListEvents(ctx context.Context, opts domain.EventListOpts) ([]domain.Event, error)
}

// EventHandler serves journal reads. The journal is public: events carry
// operation identifiers and public amounts, never choices or tally values.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// listEventsResponse wraps the journal read output.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// List returns journal events in global order.
// GET /api/events?market_id=0&after_seq=0&before=2026-01-01T00:00:00Z&limit=50&offset=0
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseEventOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.ListEvents(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, "list events", err)
		return
	}

	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
