package handlers

import (
	"net/http"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
)

// actingFor checks that the caller may act on userID. Staff may act for
// any member; everyone else only for themselves.
func actingFor(r *http.Request, userID string) error {
	claims, ok := services.ClaimsFrom(r.Context())
	if !ok {
		return services.Unauthorized("Unauthorized")
	}
	if claims.Role == models.RoleAdmin || claims.Role == models.RoleLibrarian {
		return nil
	}
	if claims.UserID != userID {
		return services.Forbidden("You can only act on your own account")
	}
	return nil
}

var dueDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// parseDueDate accepts RFC 3339 timestamps and bare dates (midnight UTC).
func parseDueDate(s string) (time.Time, error) {
	var err error
	for _, layout := range dueDateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, services.Validation("dueDate must be an ISO-8601 date")
}
