package stationapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wavecheck/wavecheck/internal/services/accounts"
)

type contextKey string

const identityKey contextKey = "identity"

func identityFrom(r *http.Request) *accounts.Identity {
	id, _ := r.Context().Value(identityKey).(*accounts.Identity)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// withIdentity resolves the session token and attaches the operator
// identity to the request.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing session token"})
			return
		}
		id, err := a.accounts.Verify(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}

func (a *API) requireStationAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id == nil || !id.CanAccessStation(chi.URLParam(r, "stationID")) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "no access to this station"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireMasterAccess gates the permanent registry to Developer and L4+.
func (a *API) requireMasterAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		if id == nil || !id.CanManageMasterList() {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "master list requires Developer or L4+ role"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
