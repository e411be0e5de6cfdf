package websocket

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/wavecheck/wavecheck/internal/services/accounts"
)

// Authenticator verifies a session token. Satisfied by accounts.Service.
type Authenticator interface {
	Verify(ctx context.Context, token string) (*accounts.Identity, error)
}

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Handler upgrades GET /ws/stations/{stationID}?token=... connections.
// The browser WebSocket API cannot set an Authorization header, so the
// session token rides in the query string.
func Handler(hub *Hub, auth Authenticator, allowedOrigins []string) http.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		stationID := chi.URLParam(r, "stationID")
		if stationID == "" {
			http.Error(w, "station id required", http.StatusBadRequest)
			return
		}

		id, err := auth.Verify(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !id.CanAccessStation(stationID) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "station", stationID, "err", err)
			return
		}

		c := newClient(stationID, conn, hub)
		hub.register <- c
		go c.writePump()
		go c.readPump()
	}
}
