package stationapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/services/accounts"
	"github.com/wavecheck/wavecheck/internal/services/roster"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

// writeError maps service sentinels onto HTTP statuses. Anything unmapped
// is a store failure: logged in full, reported generically.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roster.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, roster.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, roster.ErrAlreadyCheckedIn):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, accounts.ErrSessionInvalid):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "session invalid or expired"})
	case errors.Is(err, accounts.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many login attempts, try again later"})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "operation failed, please retry"})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(roster.ErrValidation, "malformed request body")
	}
	return nil
}
