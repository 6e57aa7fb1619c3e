package api

import (
	"errors"
	"net/http"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/metrics"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	accounts *identity.Service
	metrics  *metrics.Metrics
}

func newAuthHandler(accounts *identity.Service, m *metrics.Metrics) *authHandler {
	return &authHandler{accounts: accounts, metrics: m}
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input identity.RegisterInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.accounts.Register(r.Context(), input)
	if err != nil {
		switch {
		case isRegistrationValidation(err):
			writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		case errors.Is(err, identity.ErrUsernameTaken) || errors.Is(err, identity.ErrEmailTaken):
			writeError(w, http.StatusConflict, "duplicate", err.Error())
		case errors.Is(err, identity.ErrDepartmentNotFound):
			writeError(w, http.StatusNotFound, "not_found", "department not found")
		case errors.Is(err, identity.ErrTeamNotFound):
			writeError(w, http.StatusNotFound, "not_found", "team not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to register user")
		}
		return
	}

	auditLog(r, "register", "user", u.ID, "username", u.Username)

	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "username and password are required")
		return
	}

	u, token, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			if h.metrics != nil {
				h.metrics.IncAuthFailure("login")
			}
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to authenticate")
		return
	}

	if h.metrics != nil {
		h.metrics.IncAuthSuccess("login")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u, err := h.accounts.GetByID(r.Context(), actor.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = h.accounts.Logout(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	return ""
}

// isRegistrationValidation checks whether the error is a known validation
// error from the identity service.
func isRegistrationValidation(err error) bool {
	return errors.Is(err, identity.ErrUsernameRequired) ||
		errors.Is(err, identity.ErrEmailRequired) ||
		errors.Is(err, identity.ErrPasswordRequired) ||
		errors.Is(err, authz.ErrUnknownRole)
}
