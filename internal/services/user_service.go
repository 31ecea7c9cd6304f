package services

import (
	"log"
	"net/http"

	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type UserService struct {
	users     *PostgresUserStore
	auth      *config.AuthConfig
	paging    *config.CirculationConfig
	validator *ValidationHelper
}

// CreateUserRequest provisions a member with the temporary password
// @Description User provisioning request
type CreateUserRequest struct {
	ID         string            `json:"id" validate:"required" example:"STU-0001"`
	Name       string            `json:"name" validate:"required,min=2" example:"Abebe Kebede"`
	Username   string            `json:"username" validate:"required,min=3" example:"abebe"`
	Role       models.Role       `json:"role" validate:"required,oneof=admin librarian teacher student" example:"student"`
	Department string            `json:"department" example:"Computer Science"`
	Status     models.UserStatus `json:"status" validate:"omitempty,oneof=active deactive" example:"active"`
}

// UpdateUserRequest carries the fields to change; omitted fields are kept.
type UpdateUserRequest struct {
	Name       *string            `json:"name" validate:"omitempty,min=2"`
	Username   *string            `json:"username" validate:"omitempty,min=3"`
	Role       *models.Role       `json:"role" validate:"omitempty,oneof=admin librarian teacher student"`
	Department *string            `json:"department"`
	Status     *models.UserStatus `json:"status" validate:"omitempty,oneof=active deactive"`
}

// UserPage is one page of the member directory.
type UserPage struct {
	Users []models.User `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func NewUserService(users *PostgresUserStore, auth *config.AuthConfig, paging *config.CirculationConfig) *UserService {
	return &UserService{
		users:     users,
		auth:      auth,
		paging:    paging,
		validator: NewValidationHelper(),
	}
}

// GetMe returns the caller's profile
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse
// @Router /users/me [get]
func (s *UserService) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.FindUser(r.Context(), UserIDFrom(r.Context()))
	if errors.Is(err, ErrNotFound) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

// ListUsers pages through members
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Matches id, name or username"
// @Param role query string false "Role filter"
// @Success 200 {object} UserPage
// @Router /users [get]
func (s *UserService) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r, s.paging)
	q := UserQuery{
		Search: r.URL.Query().Get("search"),
		Role:   models.Role(r.URL.Query().Get("role")),
		Page:   page,
		Limit:  limit,
	}

	users, total, err := s.users.List(r.Context(), q)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, UserPage{Users: users, Total: total, Page: page, Limit: limit})
}

// CreateUser provisions a member
// @Summary Create user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateUserRequest true "New user"
// @Success 201 {object} models.User
// @Failure 400 {object} ErrorResponse
// @Router /users [post]
func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Status == "" {
		req.Status = models.UserStatusActive
	}

	ctx := r.Context()
	if _, err := s.users.FindUser(ctx, req.ID); err == nil {
		SendErrorResponse(w, "ID already in use", http.StatusBadRequest, nil)
		return
	} else if !errors.Is(err, ErrNotFound) {
		WriteError(w, err)
		return
	}
	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		SendErrorResponse(w, "Username already taken", http.StatusBadRequest, nil)
		return
	} else if !errors.Is(err, ErrNotFound) {
		WriteError(w, err)
		return
	}

	hashed, err := HashPassword(s.auth, s.auth.TempPassword)
	if err != nil {
		log.Printf("[USERS] Password hashing failed for %s: %v", req.ID, err)
		SendErrorResponse(w, "Server error", http.StatusInternalServerError, nil)
		return
	}

	user := &models.User{
		ID:         req.ID,
		Name:       req.Name,
		Username:   req.Username,
		Role:       req.Role,
		Department: req.Department,
		Status:     req.Status,
		Password:   hashed,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			SendErrorResponse(w, "ID or username already in use", http.StatusBadRequest, nil)
			return
		}
		WriteError(w, err)
		return
	}

	log.Printf("[USERS] Provisioned %s %s (%s)", user.Role, user.ID, user.Username)
	WriteJSON(w, http.StatusCreated, user)
}

// UpdateUser edits a member. Admin accounts keep their role and stay active.
// @Summary Update user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} models.User
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [put]
func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	user, err := s.users.FindUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	if user.Role == models.RoleAdmin && req.Role != nil && *req.Role != models.RoleAdmin {
		SendErrorResponse(w, "Cannot change admin role.", http.StatusForbidden, nil)
		return
	}
	if user.Role == models.RoleAdmin && req.Status != nil && *req.Status == models.UserStatusDeactive {
		SendErrorResponse(w, "Cannot deactivate admin account.", http.StatusForbidden, nil)
		return
	}

	if req.Username != nil && *req.Username != user.Username {
		if _, err := s.users.FindByUsername(ctx, *req.Username); err == nil {
			SendErrorResponse(w, "Username already taken", http.StatusBadRequest, nil)
			return
		} else if !errors.Is(err, ErrNotFound) {
			WriteError(w, err)
			return
		}
		user.Username = *req.Username
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.Status != nil {
		user.Status = *req.Status
	}

	switch err := s.users.Update(ctx, user); {
	case errors.Is(err, ErrDuplicate):
		SendErrorResponse(w, "Username already taken", http.StatusBadRequest, nil)
		return
	case errors.Is(err, ErrNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	case err != nil:
		WriteError(w, err)
		return
	}

	log.Printf("[USERS] Updated user %s", user.ID)
	WriteJSON(w, http.StatusOK, user)
}

// DeleteUser removes a non-admin member
// @Summary Delete user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [delete]
func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	user, err := s.users.FindUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	if user.Role == models.RoleAdmin {
		SendErrorResponse(w, "Cannot delete admin account.", http.StatusForbidden, nil)
		return
	}

	if err := s.users.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		WriteError(w, err)
		return
	}

	log.Printf("[USERS] Deleted user %s", id)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}
