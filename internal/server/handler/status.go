package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the capability backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandler serves a summary of the running configuration: which
// capability backend and store are active, the ledger's own principal, and
// whether the backend currently answers.
type StatusHandler struct {
	backend   string
	store     string
	principal string
	pinger    Pinger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(backend, store, principal string, pinger Pinger) *StatusHandler {
	return &StatusHandler{
		backend:   backend,
		store:     store,
		principal: principal,
		pinger:    pinger,
	}
}

// Get responds with the backend summary.
// GET /api/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	capability := "ok"
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			capability = "unreachable"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backend":    h.backend,
		"store":      h.store,
		"principal":  h.principal,
		"capability": capability,
	})
}
