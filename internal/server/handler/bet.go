package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// BetService defines the methods the bet handler requires from the engine.
type BetService interface {
	PlaceBet(ctx context.Context, marketID uint64, participant domain.Principal, choice fhe.Cipher[uint32], amount uint64) (domain.BetView, error)
	GetBet(ctx context.Context, marketID uint64, participant domain.Principal) (domain.BetView, error)
}

// Encryptor provides the server-side encrypt used when a caller submits a
// plaintext choice instead of a ciphertext handle. Real deployments encrypt
// client-side against the capability gateway and submit the handle; the
// plaintext path exists for the sim backend and local development.
type Encryptor interface {
	EncryptUint32(ctx context.Context, value uint32) (fhe.Cipher[uint32], error)
}

// BetHandler serves bet placement and lookup.
type BetHandler struct {
	bets      BetService
	encryptor Encryptor
	logger    *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, encryptor Encryptor, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:      bets,
		encryptor: encryptor,
		logger:    logger,
	}
}

// placeBetRequest is the body of POST /api/markets/{id}/bets. Exactly one of
// choice_handle (a ciphertext the caller encrypted out-of-band) or choice
// (plaintext, encrypted server-side) should be set; choice_handle wins when
// both are.
type placeBetRequest struct {
	ChoiceHandle string  `json:"choice_handle,omitempty"`
	Choice       *uint32 `json:"choice,omitempty"`
	Amount       uint64  `json:"amount"`
}

// Place records the caller's stake with an encrypted choice.
// POST /api/markets/{id}/bets
func (h *BetHandler) Place(w http.ResponseWriter, r *http.Request) {
	participant, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	choice := fhe.NewCipher[uint32](fhe.Handle(req.ChoiceHandle))
	if choice.IsZero() && req.Choice != nil {
		choice, err = h.encryptor.EncryptUint32(r.Context(), *req.Choice)
		if err != nil {
			respondError(w, r, h.logger, "encrypt choice", err)
			return
		}
	}

	view, err := h.bets.PlaceBet(r.Context(), id, participant, choice, req.Amount)
	if err != nil {
		respondError(w, r, h.logger, "place bet", err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// Get returns the bet a participant placed on a market. The choice appears
// only as its ciphertext handle.
// GET /api/markets/{id}/bets/{principal}
func (h *BetHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	participant, err := domain.ParsePrincipal(r.PathValue("principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.bets.GetBet(r.Context(), id, participant)
	if err != nil {
		respondError(w, r, h.logger, "get bet", err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
