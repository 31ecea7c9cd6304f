package services

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/google/uuid"
)

// NewsAudience lists the roles an "all" broadcast expands to.
var NewsAudience = []string{string(models.RoleLibrarian), string(models.RoleTeacher), string(models.RoleStudent)}

type NewsService struct {
	news      *PostgresNewsStore
	paging    *config.CirculationConfig
	validator *ValidationHelper
	now       func() time.Time
}

// CreateNewsRequest posts a broadcast
// @Description News broadcast request
type CreateNewsRequest struct {
	Role string `json:"role" validate:"required,oneof=all librarian teacher student" example:"all"`
	News string `json:"news" validate:"required" example:"Library closes early on Friday"`
}

// MarkReadRequest marks every item as read by one user.
type MarkReadRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// NewsPage is one page of broadcasts.
type NewsPage struct {
	News  []models.News `json:"news"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func NewNewsService(news *PostgresNewsStore, paging *config.CirculationConfig) *NewsService {
	return &NewsService{
		news:      news,
		paging:    paging,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// newsID renders N-YYYYMMDD-XXXXXXXX.
func newsID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("N-%s-%s", now.UTC().Format("20060102"), suffix)
}

// CreateNews posts a broadcast
// @Summary Post news
// @Tags news
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateNewsRequest true "News"
// @Success 201 {object} object{message=string,news=models.News}
// @Failure 400 {object} ErrorResponse
// @Router /news [post]
func (s *NewsService) CreateNews(w http.ResponseWriter, r *http.Request) {
	var req CreateNewsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	req.News = strings.TrimSpace(req.News)
	if err := s.validator.ValidateStruct(&req); err != nil || len([]rune(req.News)) < 5 {
		SendErrorResponse(w, "Role and news (min 5 chars) required", http.StatusBadRequest, nil)
		return
	}

	roles := []string{req.Role}
	if req.Role == "all" {
		roles = append([]string(nil), NewsAudience...)
	}

	item := &models.News{
		ID:     newsID(s.now()),
		Roles:  roles,
		News:   req.News,
		ReadBy: []string{},
	}
	if err := s.news.Create(r.Context(), item); err != nil {
		WriteError(w, err)
		return
	}

	log.Printf("[NEWS] Posted %s to %v", item.ID, item.Roles)
	WriteJSON(w, http.StatusCreated, map[string]any{"message": "News posted", "news": item})
}

// ListNews pages through broadcasts for a role
// @Summary List news
// @Tags news
// @Produce json
// @Security BearerAuth
// @Param role query string false "Audience role"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Text search"
// @Success 200 {object} NewsPage
// @Router /news [get]
func (s *NewsService) ListNews(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, s.paging)
	q := r.URL.Query()

	items, total, err := s.news.List(r.Context(), q.Get("role"), q.Get("search"), page, limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, NewsPage{News: items, Total: total, Page: page, Limit: limit})
}

// UnreadCount counts broadcasts for a role not yet read by a user
// @Summary Unread news count
// @Tags news
// @Produce json
// @Security BearerAuth
// @Param role query string true "Audience role"
// @Param userId query string true "User ID"
// @Success 200 {object} object{count=int}
// @Failure 400 {object} ErrorResponse
// @Router /news/unread [get]
func (s *NewsService) UnreadCount(w http.ResponseWriter, r *http.Request) {
	role, userID := r.URL.Query().Get("role"), r.URL.Query().Get("userId")
	if role == "" || userID == "" {
		SendErrorResponse(w, "role and userId required", http.StatusBadRequest, nil)
		return
	}

	count, err := s.news.CountUnread(r.Context(), role, userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

// MarkRead marks every broadcast as read by the user
// @Summary Mark news read
// @Tags news
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MarkReadRequest true "Reader"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /news/read [post]
func (s *NewsService) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "userId required", http.StatusBadRequest, nil)
		return
	}

	if _, err := s.news.MarkAllRead(r.Context(), req.UserID); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "News marked as read"})
}
