package stationapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/wavecheck/wavecheck/internal/importer"
	"github.com/wavecheck/wavecheck/internal/models"
	"github.com/wavecheck/wavecheck/internal/services/roster"
)

// maxImportSize caps master-list uploads at 8 MiB; real exports are a few
// hundred KiB.
const maxImportSize = 8 << 20

type masterListResponse struct {
	Drivers []models.MasterDriver `json:"drivers"`
}

func (a *API) handleMasterList(w http.ResponseWriter, r *http.Request) {
	list, err := a.roster.MasterList(r.Context(), stationID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, masterListResponse{Drivers: list})
}

func (a *API) handleAddMaster(w http.ResponseWriter, r *http.Request) {
	var req models.MasterCreateInput
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	m, err := a.roster.AddMasterDriver(r.Context(), a.actor(r), stationID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type importResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// handleImportMaster takes a multipart upload with the workbook under the
// "file" field.
func (a *API) handleImportMaster(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		writeError(w, errors.Wrap(roster.ErrValidation, "expected a multipart file upload"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.Wrap(roster.ErrValidation, "missing file field"))
		return
	}
	defer file.Close()

	parsed, err := importer.ParseMasterWorkbook(file)
	if err != nil {
		writeError(w, errors.Wrap(roster.ErrValidation, err.Error()))
		return
	}
	n, err := a.roster.ImportMaster(r.Context(), a.actor(r), stationID(r), parsed.Rows)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n, Skipped: parsed.Skipped})
}

func (a *API) handleResetMaster(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.roster.ResetMasterList(r.Context(), a.actor(r), stationID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{Deleted: deleted})
}

func (a *API) handleDeleteMaster(w http.ResponseWriter, r *http.Request) {
	if err := a.roster.DeleteMasterDriver(r.Context(), a.actor(r), stationID(r), chi.URLParam(r, "masterID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
