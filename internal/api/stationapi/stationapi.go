// Package stationapi is the JSON surface the station terminals talk to.
package stationapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wavecheck/wavecheck/internal/services/accounts"
	"github.com/wavecheck/wavecheck/internal/services/roster"
	"github.com/wavecheck/wavecheck/internal/services/rosterwatch"
	"github.com/wavecheck/wavecheck/internal/websocket"
)

type API struct {
	roster   *roster.Service
	watchers *rosterwatch.Registry
	accounts *accounts.Service
	hub      *websocket.Hub

	allowedOrigins []string
}

func New(rosterSvc *roster.Service, watchers *rosterwatch.Registry, accountsSvc *accounts.Service, hub *websocket.Hub, allowedOrigins []string) *API {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &API{
		roster:         rosterSvc,
		watchers:       watchers,
		accounts:       accountsSvc,
		hub:            hub,
		allowedOrigins: allowedOrigins,
	}
}

// Router wires every operator-facing route. Asset serving is mounted
// separately in front of this router so API calls never pass through the
// offline cache.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/login", a.handleLogin)
	r.Post("/api/login/badge", a.handleBadgeLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.withIdentity)
		r.Delete("/api/session", a.handleLogout)

		r.Route("/api/stations/{stationID}", func(r chi.Router) {
			r.Use(a.requireStationAccess)

			r.Get("/roster", a.handleRoster)
			r.Get("/stats", a.handleStats)
			r.Get("/waves/{startTime}/missing", a.handleWaveMissing)
			r.Get("/companies/{company}/missing", a.handleCompanyMissing)
			r.Get("/missing-report", a.handleMissingReport)

			r.Post("/scan", a.handleScan)
			r.Post("/roster", a.handleAddDriver)
			r.Post("/roster/bulk-replace", a.handleBulkReplace)
			r.Post("/roster/reset", a.handleResetRoster)
			r.Patch("/roster/{driverID}", a.handleEditDriver)
			r.Delete("/roster/{driverID}", a.handleDeleteDriver)
			r.Post("/roster/{driverID}/status", a.handleStatus)

			r.Route("/master", func(r chi.Router) {
				r.Use(a.requireMasterAccess)
				r.Get("/", a.handleMasterList)
				r.Post("/", a.handleAddMaster)
				r.Post("/import", a.handleImportMaster)
				r.Post("/reset", a.handleResetMaster)
				r.Delete("/{masterID}", a.handleDeleteMaster)
			})
		})
	})

	if a.hub != nil {
		r.Get("/ws/stations/{stationID}", websocket.Handler(a.hub, a.accounts, a.allowedOrigins))
	}

	return r
}
