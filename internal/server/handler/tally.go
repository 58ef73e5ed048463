package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// TallyService defines the tally read the tally handler requires from the
// engine.
type TallyService interface {
	Tallies(ctx context.Context, marketID uint64) ([]fhe.Handle, error)
}

// TallyHandler serves the per-option counter handles of a market. Values
// stay encrypted; a granted principal decrypts them against the capability
// backend, never through this API.
type TallyHandler struct {
	tallies TallyService
	logger  *slog.Logger
}

// NewTallyHandler creates a TallyHandler.
func NewTallyHandler(tallies TallyService, logger *slog.Logger) *TallyHandler {
	return &TallyHandler{
		tallies: tallies,
		logger:  logger,
	}
}

// talliesResponse pairs a market with its current counter handles, ordered
// by option index.
type talliesResponse struct {
	MarketID     uint64       `json:"market_id"`
	TallyHandles []fhe.Handle `json:"tally_handles"`
}

// Get returns the market's current tally handles.
// GET /api/markets/{id}/tallies
func (h *TallyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	handles, err := h.tallies.Tallies(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get tallies", err)
		return
	}

	writeJSON(w, http.StatusOK, talliesResponse{
		MarketID:     id,
		TallyHandles: handles,
	})
}
