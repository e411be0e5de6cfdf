package stationapi

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/services/roster"
	"github.com/wavecheck/wavecheck/internal/services/rosterwatch"
)

func stationID(r *http.Request) string {
	return chi.URLParam(r, "stationID")
}

func (a *API) actor(r *http.Request) string {
	if id := identityFrom(r); id != nil {
		return id.Email
	}
	return "unknown"
}

func (a *API) watcher(r *http.Request) (*rosterwatch.Watcher, error) {
	return a.watchers.Get(r.Context(), stationID(r))
}

type rosterResponse struct {
	Seq     uint64                `json:"seq"`
	Drivers []models.DriverRecord `json:"drivers"`
}

func (a *API) handleRoster(w http.ResponseWriter, r *http.Request) {
	snap, err := a.roster.Snapshot(r.Context(), stationID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rosterResponse{Seq: snap.Seq, Drivers: snap.Drivers})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	wt, err := a.watcher(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wt.Stats())
}

type missingResponse struct {
	Drivers []models.DriverRecord `json:"drivers"`
}

func (a *API) handleWaveMissing(w http.ResponseWriter, r *http.Request) {
	wt, err := a.watcher(r)
	if err != nil {
		writeError(w, err)
		return
	}
	startTime, err := url.PathUnescape(chi.URLParam(r, "startTime"))
	if err != nil {
		writeError(w, errors.Wrap(roster.ErrValidation, "bad start time"))
		return
	}
	if wt.Stats().Wave(startTime) == nil {
		writeError(w, errors.Wrapf(roster.ErrNotFound, "no wave at %s", startTime))
		return
	}
	writeJSON(w, http.StatusOK, missingResponse{Drivers: wt.Stats().MissingInWave(startTime)})
}

func (a *API) handleCompanyMissing(w http.ResponseWriter, r *http.Request) {
	wt, err := a.watcher(r)
	if err != nil {
		writeError(w, err)
		return
	}
	company, err := url.PathUnescape(chi.URLParam(r, "company"))
	if err != nil {
		writeError(w, errors.Wrap(roster.ErrValidation, "bad company name"))
		return
	}
	writeJSON(w, http.StatusOK, missingResponse{Drivers: wt.Stats().MissingByCompany(company)})
}

type missingReportResponse struct {
	Report string `json:"report"`
}

func (a *API) handleMissingReport(w http.ResponseWriter, r *http.Request) {
	wt, err := a.watcher(r)
	if err != nil {
		writeError(w, err)
		return
	}
	drivers, _ := wt.Snapshot()
	writeJSON(w, http.StatusOK, missingReportResponse{Report: rosterwatch.MissingReport(drivers)})
}

type scanRequest struct {
	BadgeID string `json:"badgeId"`
}

type scanResponse struct {
	Result  string               `json:"result"`
	BadgeID string               `json:"badgeId"`
	Driver  *models.DriverRecord `json:"driver,omitempty"`
}

// handleScan always answers 200 with a result field; the scanner UI shows
// green/orange/red off that, not off HTTP statuses.
func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.roster.CheckInByBadge(r.Context(), a.actor(r), stationID(r), req.BadgeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Result: res.Outcome, BadgeID: res.BadgeID, Driver: res.Driver})
}

func (a *API) handleAddDriver(w http.ResponseWriter, r *http.Request) {
	var req models.DriverCreateInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.roster.AddDriver(r.Context(), a.actor(r), stationID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type bulkReplaceRequest struct {
	Text string `json:"text"`
}

func (a *API) handleBulkReplace(w http.ResponseWriter, r *http.Request) {
	var req bulkReplaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.roster.BulkReplaceRoster(r.Context(), a.actor(r), stationID(r), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type resetResponse struct {
	Deleted int64 `json:"deleted"`
}

func (a *API) handleResetRoster(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.roster.ResetRoster(r.Context(), a.actor(r), stationID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Deleted: deleted})
}

type editDriverRequest struct {
	Name    *string `json:"name"`
	BadgeID *string `json:"badgeId"`
}

type editDriverResponse struct {
	Driver       *models.DriverRecord `json:"driver"`
	MasterSynced bool                 `json:"masterSynced"`
}

func (a *API) handleEditDriver(w http.ResponseWriter, r *http.Request) {
	var req editDriverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.roster.EditDriver(r.Context(), a.actor(r), stationID(r), chi.URLParam(r, "driverID"), req.Name, req.BadgeID)
	if errors.Is(err, roster.ErrPartialSync) {
		// The roster did change; the operator needs to know the registry
		// did not follow.
		writeJSON(w, http.StatusOK, editDriverResponse{Driver: rec, MasterSynced: false})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, editDriverResponse{Driver: rec, MasterSynced: true})
}

func (a *API) handleDeleteDriver(w http.ResponseWriter, r *http.Request) {
	if err := a.roster.DeleteDriver(r.Context(), a.actor(r), stationID(r), chi.URLParam(r, "driverID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	rec, err := a.roster.MarkStatus(r.Context(), a.actor(r), stationID(r), chi.URLParam(r, "driverID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
