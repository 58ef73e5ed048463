package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// AccessService defines the capability-grant operations the access handler
// requires from the engine.
type AccessService interface {
	GrantTallyAccess(ctx context.Context, marketID uint64, grantee domain.Principal) error
	GrantBetAccess(ctx context.Context, marketID uint64, participant domain.Principal) error
}

// AccessHandler serves decrypt-capability grants. Grants are permissionless
// and monotonic: anyone may request one, for anyone, and nothing revokes
// them. A tally grant covers the market's current counter handles; a bet
// grant covers the participant's own choice ciphertext only.
type AccessHandler struct {
	access AccessService
	logger *slog.Logger
}

// NewAccessHandler creates an AccessHandler.
func NewAccessHandler(access AccessService, logger *slog.Logger) *AccessHandler {
	return &AccessHandler{
		access: access,
		logger: logger,
	}
}

// grantRequest is the body of both grant endpoints. The principal field
// defaults to the caller when omitted.
type grantRequest struct {
	Grantee     string `json:"grantee,omitempty"`
	Participant string `json:"participant,omitempty"`
}

// decodeGrant reads an optional JSON body. An empty body is valid and means
// "grant to the caller".
func decodeGrant(r *http.Request) (grantRequest, error) {
	var req grantRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return grantRequest{}, err
	}
	return req, nil
}

// GrantTally makes the market's current tally handles decryptable by the
// grantee. Handles replaced by later bets need a fresh grant.
// POST /api/markets/{id}/grants/tally
func (h *AccessHandler) GrantTally(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := decodeGrant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	grantee := caller
	if req.Grantee != "" {
		if grantee, err = domain.ParsePrincipal(req.Grantee); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.access.GrantTallyAccess(r.Context(), id, grantee); err != nil {
		respondError(w, r, h.logger, "grant tally access", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "granted",
		"market_id": id,
		"grantee":   grantee.String(),
	})
}

// GrantBet makes a participant's own choice ciphertext decryptable by that
// participant. The bet must already exist.
// POST /api/markets/{id}/grants/bet
func (h *AccessHandler) GrantBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := decodeGrant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	participant := caller
	if req.Participant != "" {
		if participant, err = domain.ParsePrincipal(req.Participant); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.access.GrantBetAccess(r.Context(), id, participant); err != nil {
		respondError(w, r, h.logger, "grant bet access", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "granted",
		"market_id":   id,
		"participant": participant.String(),
	})
}
