package services

import (
	"net/http"
	"strconv"

	"github.com/campuslib/backend/internal/config"
)

// pageParams reads page and limit from the query string, clamped to the
// configured bounds.
func pageParams(r *http.Request, cfg *config.CirculationConfig) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = cfg.DefaultPageSize
	}
	if limit > cfg.MaxPageSize {
		limit = cfg.MaxPageSize
	}
	return page, limit
}
