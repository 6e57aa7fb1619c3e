package api

import (
	"net/http"

	"github.com/mlaroche/boussole/internal/analytics"
	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/okr"
)

// analyticsHandler serves aggregate views computed from OKR snapshots.
type analyticsHandler struct {
	okrs *okr.Service
}

func newAnalyticsHandler(okrs *okr.Service) *analyticsHandler {
	return &analyticsHandler{okrs: okrs}
}

// Overview handles GET /api/v1/analytics/overview.
func (h *analyticsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	records, err := h.okrs.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load okrs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_okrs":            len(records),
		"progress_distribution": analytics.ProgressDistribution(records),
		"status_distribution":   analytics.StatusDistribution(records),
		"team_performance":      analytics.TeamPerformance(records),
	})
}

// Dashboard handles GET /api/v1/analytics/dashboard; the summary covers the
// OKRs assigned to the caller.
func (h *analyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := authz.ActorFromContext(r.Context())
	if actor == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	records, err := h.okrs.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load okrs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": analytics.UserSummary(records),
		"okrs":    records,
	})
}
