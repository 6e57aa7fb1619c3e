package api

import (
	"log/slog"
	"net/http"

	"github.com/mlaroche/boussole/internal/authz"
	"github.com/mlaroche/boussole/internal/ratelimit"
)

// auditLog emits a structured audit log entry for a mutating action.
func auditLog(r *http.Request, action string, resourceType string, resourceID int64, detail ...any) {
	attrs := []any{
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
		"ip", ratelimit.ClientIP(r),
		"request_id", RequestIDFromContext(r.Context()),
	}

	if actor := authz.ActorFromContext(r.Context()); actor != nil {
		attrs = append(attrs, "user_id", actor.UserID, "username", actor.Username, "role", actor.Role)
	}

	attrs = append(attrs, detail...)
	slog.Info("audit", attrs...)
}
