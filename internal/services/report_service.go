package services

import (
	"context"
	"net/http"
	"time"

	"github.com/campuslib/backend/internal/models"
)

type ReportService struct {
	users   *PostgresUserStore
	catalog *PostgresCatalog
	news    *PostgresNewsStore
	now     func() time.Time
}

func NewReportService(users *PostgresUserStore, catalog *PostgresCatalog, news *PostgresNewsStore) *ReportService {
	return &ReportService{users: users, catalog: catalog, news: news, now: time.Now}
}

// weekStart is 00:00 local time seven days before now.
func weekStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d-7, 0, 0, 0, 0, now.Location())
}

// Build collects the report for one of users, news, books or deactive.
func (s *ReportService) Build(ctx context.Context, reportType string) (map[string]any, error) {
	since := weekStart(s.now())

	switch reportType {
	case "users":
		added, err := s.users.CreatedSince(ctx, since, "")
		if err != nil {
			return nil, err
		}
		deactivated, err := s.users.CreatedSince(ctx, since, models.UserStatusDeactive)
		if err != nil {
			return nil, err
		}
		return map[string]any{"added": added, "deactivated": deactivated}, nil
	case "news":
		added, err := s.news.CreatedSince(ctx, since)
		if err != nil {
			return nil, err
		}
		return map[string]any{"added": added}, nil
	case "books":
		added, err := s.catalog.CreatedSince(ctx, since)
		if err != nil {
			return nil, err
		}
		return map[string]any{"added": added}, nil
	case "deactive":
		deactivated, err := s.users.CreatedSince(ctx, since, models.UserStatusDeactive)
		if err != nil {
			return nil, err
		}
		return map[string]any{"deactivated": deactivated}, nil
	}
	return nil, Validation("Invalid report type")
}

// Weekly serves the weekly report
// @Summary Weekly report
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param type query string true "users, news, books or deactive"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /reports/weekly [get]
func (s *ReportService) Weekly(w http.ResponseWriter, r *http.Request) {
	report, err := s.Build(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}
