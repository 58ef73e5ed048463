package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// engine. It is declared locally so the handler package does not depend on
// the concrete engine implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator domain.Principal, title string, options []string) (domain.MarketView, error)
	GetMarket(ctx context.Context, id uint64) (domain.MarketView, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.MarketView, error)
	CountMarkets(ctx context.Context) (uint64, error)
	CloseMarket(ctx context.Context, id uint64, winning uint32, closer domain.Principal) (domain.MarketView, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the body of POST /api/markets.
type createMarketRequest struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

// closeMarketRequest is the body of POST /api/markets/{id}/close.
type closeMarketRequest struct {
	WinningOption *uint32 `json:"winning_option"`
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.MarketView `json:"markets"`
	Total   uint64              `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// List returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.ListMarkets(r.Context(), opts)
	if err != nil {
		respondError(w, r, h.logger, "list markets", err)
		return
	}

	total, err := h.markets.CountMarkets(r.Context())
	if err != nil {
		respondError(w, r, h.logger, "count markets", err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// Create opens a new market. Anyone with a resolved principal may create.
// POST /api/markets
func (h *MarketHandler) Create(w http.ResponseWriter, r *http.Request) {
	creator, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	view, err := h.markets.CreateMarket(r.Context(), creator, req.Title, req.Options)
	if err != nil {
		respondError(w, r, h.logger, "create market", err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// Get returns a single market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, "get market", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Close resolves a market to a winning option. Closing is permissionless:
// any principal may close any active market.
// POST /api/markets/{id}/close
func (h *MarketHandler) Close(w http.ResponseWriter, r *http.Request) {
	closer, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req closeMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.WinningOption == nil {
		writeError(w, http.StatusBadRequest, "winning_option is required")
		return
	}

	view, err := h.markets.CloseMarket(r.Context(), id, *req.WinningOption, closer)
	if err != nil {
		respondError(w, r, h.logger, "close market", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
