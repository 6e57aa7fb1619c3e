package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
)

// hierarchyHandler groups organization, department and team HTTP handlers.
type hierarchyHandler struct {
	units    *hierarchy.Service
	accounts *identity.Service
}

func newHierarchyHandler(units *hierarchy.Service, accounts *identity.Service) *hierarchyHandler {
	return &hierarchyHandler{units: units, accounts: accounts}
}

// CreateOrganization handles POST /api/v1/admin/organizations.
func (h *hierarchyHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var input hierarchy.CreateOrganizationInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	org, err := h.units.CreateOrganization(r.Context(), input)
	if err != nil {
		if errors.Is(err, hierarchy.ErrNameRequired) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "organization name is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create organization")
		return
	}

	auditLog(r, "create", "organization", org.ID, "name", org.Name)

	writeJSON(w, http.StatusCreated, org)
}

// CreateDepartment handles POST /api/v1/admin/departments.
func (h *hierarchyHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var input hierarchy.CreateDepartmentInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	dept, err := h.units.CreateDepartment(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrNameRequired):
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "department name is required")
		case errors.Is(err, hierarchy.ErrOrganizationNotFound):
			writeError(w, http.StatusNotFound, "not_found", "organization not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create department")
		}
		return
	}

	auditLog(r, "create", "department", dept.ID, "name", dept.Name)

	writeJSON(w, http.StatusCreated, dept)
}

// CreateTeam handles POST /api/v1/admin/teams.
func (h *hierarchyHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var input hierarchy.CreateTeamInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	team, err := h.units.CreateTeam(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrNameRequired):
			writeError(w, http.StatusUnprocessableEntity, "validation_error", "team name is required")
		case errors.Is(err, hierarchy.ErrDepartmentNotFound):
			writeError(w, http.StatusNotFound, "not_found", "department not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create team")
		}
		return
	}

	auditLog(r, "create", "team", team.ID, "name", team.Name)

	writeJSON(w, http.StatusCreated, team)
}

// ListOrganizations handles GET /api/v1/organizations.
func (h *hierarchyHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.units.ListOrganizations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list organizations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"organizations": orgs})
}

// ListDepartments handles GET /api/v1/departments with an optional
// organization_id filter.
func (h *hierarchyHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	orgID, ok := optionalIDParam(w, r, "organization_id")
	if !ok {
		return
	}

	depts, err := h.units.ListDepartments(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list departments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"departments": depts})
}

// ListTeams handles GET /api/v1/teams with an optional department_id filter.
func (h *hierarchyHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	deptID, ok := optionalIDParam(w, r, "department_id")
	if !ok {
		return
	}

	teams, err := h.units.ListTeams(r.Context(), deptID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list teams")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// ListTeamMembers handles GET /api/v1/teams/{id}/members.
func (h *hierarchyHandler) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "team id must be an integer")
		return
	}

	if _, err := h.units.GetTeam(r.Context(), id); err != nil {
		if errors.Is(err, hierarchy.ErrTeamNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "team not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load team")
		return
	}

	members, err := h.accounts.ListTeamMembers(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list team members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// parseID parses a chi URL param as an int64 id.
func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// optionalIDParam parses an optional int64 query param. On a malformed
// value it writes a 400 response and reports false.
func optionalIDParam(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be an integer")
		return nil, false
	}
	return &v, true
}
