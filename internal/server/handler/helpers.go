// Package handler implements the HTTP endpoints of the ledger API. Handlers
// are a thin shell: they parse requests, call the engine, and translate
// domain errors to status codes. Responses carry public fields and
// ciphertext handles only.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
	"github.com/veilmarket/veilmarket/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, fhe.ErrUnknownHandle):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, fhe.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, fhe.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError translates err for the client. Domain errors keep their
// message; anything unrecognized is logged and answered with a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "capability service unavailable"
		}
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// parseEventOpts extracts journal read filters from the query string:
// market_id, after_seq (resume cursor), before (RFC 3339), plus the standard
// pagination parameters.
func parseEventOpts(r *http.Request) (domain.EventListOpts, error) {
	q := r.URL.Query()
	list := parseListOpts(r)

	opts := domain.EventListOpts{
		Limit:  list.Limit,
		Offset: list.Offset,
	}

	if v := q.Get("market_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return opts, errInvalidQuery("market_id", v)
		}
		opts.MarketID = &id
	}
	if v := q.Get("after_seq"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return opts, errInvalidQuery("after_seq", v)
		}
		opts.AfterSeq = &seq
	}
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, errInvalidQuery("before", v)
		}
		opts.Before = &t
	}
	return opts, nil
}

func errInvalidQuery(name, value string) error {
	return &queryError{name: name, value: value}
}

type queryError struct {
	name  string
	value string
}

func (e *queryError) Error() string {
	return "invalid " + e.name + " parameter " + strconv.Quote(e.value)
}

func (e *queryError) Is(target error) bool {
	return target == domain.ErrInvalidArgument
}

// marketID parses the {id} path parameter.
func marketID(r *http.Request) (uint64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errInvalidQuery("market id", raw)
	}
	return id, nil
}

// callerPrincipal extracts the principal the identity middleware resolved.
// Mutating endpoints require one; the second return says whether it exists.
func callerPrincipal(r *http.Request) (domain.Principal, bool) {
	return middleware.PrincipalFrom(r.Context())
}

// requirePrincipal is callerPrincipal plus the 401 write when absent.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := callerPrincipal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "principal required: set "+middleware.HeaderPrincipal+" or sign the request")
	}
	return p, ok
}
