package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/metrics"
	"github.com/mlaroche/boussole/internal/okr"
)

// okrHandler groups OKR HTTP handlers.
type okrHandler struct {
	service *okr.Service
	metrics *metrics.Metrics
}

func newOKRHandler(svc *okr.Service, m *metrics.Metrics) *okrHandler {
	return &okrHandler{service: svc, metrics: m}
}

// Create handles POST /api/v1/okrs.
func (h *okrHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var input okr.CreateInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	rec, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		writeOKRError(w, err, "failed to create okr")
		return
	}

	auditLog(r, "create", "okr", rec.ID, "title", rec.Title, "team_id", rec.TeamID)
	if h.metrics != nil {
		h.metrics.IncOKRMutation("create")
	}

	writeJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/v1/okrs with optional team_id or assigned_to filters.
func (h *okrHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		records []*okr.OKR
		err     error
	)
	switch {
	case q.Get("team_id") != "":
		id, perr := strconv.ParseInt(q.Get("team_id"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "team_id must be an integer")
			return
		}
		records, err = h.service.ListForTeam(r.Context(), id)
	case q.Get("assigned_to") != "":
		id, perr := strconv.ParseInt(q.Get("assigned_to"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "assigned_to must be an integer")
			return
		}
		records, err = h.service.ListForUser(r.Context(), id)
	default:
		records, err = h.service.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list okrs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"okrs": records})
}

// Mine handles GET /api/v1/okrs/mine.
func (h *okrHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	records, err := h.service.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list okrs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"okrs": records})
}

// Get handles GET /api/v1/okrs/{id}.
func (h *okrHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "okr id must be an integer")
		return
	}

	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeOKRError(w, err, "failed to get okr")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// UpdateProgress handles PUT /api/v1/okrs/{id}/progress.
func (h *okrHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "okr id must be an integer")
		return
	}

	var req struct {
		Progress float64 `json:"progress"`
		Status   string  `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	rec, err := h.service.UpdateProgress(r.Context(), actor, id, req.Progress, req.Status)
	if err != nil {
		writeOKRError(w, err, "failed to update okr progress")
		return
	}

	auditLog(r, "update", "okr", rec.ID, "progress", rec.Progress, "status", string(rec.Status))
	if h.metrics != nil {
		h.metrics.IncOKRMutation("progress")
	}

	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/v1/okrs/{id}.
func (h *okrHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "okr id must be an integer")
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		writeOKRError(w, err, "failed to delete okr")
		return
	}

	auditLog(r, "delete", "okr", id)
	if h.metrics != nil {
		h.metrics.IncOKRMutation("delete")
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeOKRError maps OKR service errors onto the HTTP error taxonomy.
func writeOKRError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case isOKRValidation(err):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.Is(err, hierarchy.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, "not_found", "team not found")
	case errors.Is(err, identity.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "assigned user not found")
	case errors.Is(err, okr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "okr not found")
	case errors.Is(err, okr.ErrNotAllowed):
		writeError(w, http.StatusForbidden, "forbidden", "not allowed to modify this okr")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

// isOKRValidation checks whether the error is a known validation error from
// the OKR service.
func isOKRValidation(err error) bool {
	return errors.Is(err, okr.ErrTitleRequired) ||
		errors.Is(err, okr.ErrObjectiveRequired) ||
		errors.Is(err, okr.ErrKeyResultsRequired) ||
		errors.Is(err, okr.ErrKeyResultBlank) ||
		errors.Is(err, okr.ErrDatesRequired) ||
		errors.Is(err, okr.ErrDateFormat) ||
		errors.Is(err, okr.ErrDateOrder) ||
		errors.Is(err, okr.ErrInvalidStatus) ||
		errors.Is(err, okr.ErrAssigneeNotInTeam)
}
