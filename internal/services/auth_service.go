package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	users     *PostgresUserStore
	redis     *redis.Client
	cfg       *config.AuthConfig
	validator *ValidationHelper
	now       func() time.Time
}

// FirstLoginRequest identifies a provisioned user who has not set a password yet
// @Description First login request structure
type FirstLoginRequest struct {
	Username string `json:"username" validate:"required" example:"abebe"` // Username
	ID       string `json:"id" validate:"required" example:"STU-0001"`    // Campus ID
}

// ChangePasswordRequest sets the first password
// @Description First password change request structure
type ChangePasswordRequest struct {
	Username        string `json:"username" validate:"required"`
	ID              string `json:"id" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"abebe"`        // Username
	Password string `json:"password" validate:"required" example:"password123"` // User password
}

// ChangePasswordAfterLoginRequest rotates the caller's password
type ChangePasswordAfterLoginRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// LoginResponse represents the authentication response
// @Description Authentication response structure
type LoginResponse struct {
	Token string      `json:"token"`
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

func NewAuthService(users *PostgresUserStore, redisClient *redis.Client, cfg *config.AuthConfig) *AuthService {
	return &AuthService{
		users:     users,
		redis:     redisClient,
		cfg:       cfg,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// decode reads and validates a request body, writing the error response itself.
func (s *AuthService) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := DecodeJSON(w, r, dst); err != nil {
		WriteError(w, err)
		return false
	}
	if err := s.validator.ValidateStruct(dst); err != nil {
		if FieldFailed(err, "ConfirmPassword") {
			SendErrorResponse(w, "Passwords do not match", http.StatusBadRequest, nil)
			return false
		}
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// FirstLogin issues a short-lived token for setting the first password
// @Summary First login
// @Description Exchange username and campus ID for a 15 minute password setup token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body FirstLoginRequest true "First login request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/first-login [post]
func (s *AuthService) FirstLogin(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] First login attempt from IP: %s", r.RemoteAddr)

	var req FirstLoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.FindUser(r.Context(), req.ID)
	if errors.Is(err, ErrNotFound) || (err == nil && user.Username != req.Username) {
		SendErrorResponse(w, "User not found. Please register first.", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	if user.PasswordChanged {
		SendErrorResponse(w, "Use your password to login.", http.StatusBadRequest, nil)
		return
	}

	token, err := s.issueToken(user, ActionFirstChange, s.cfg.FirstLoginTTL)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] First login token issued for user %s", user.ID)
	WriteJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"message": "First login – please set your password.",
	})
}

// ChangePassword sets the first password of a provisioned user
// @Summary Set first password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Password change request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/change-password [post]
func (s *AuthService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.FindUser(r.Context(), req.ID)
	if errors.Is(err, ErrNotFound) || (err == nil && user.Username != req.Username) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	if user.PasswordChanged {
		SendErrorResponse(w, "Password already changed", http.StatusBadRequest, nil)
		return
	}

	if !s.storePassword(r.Context(), w, user.ID, req.NewPassword) {
		return
	}

	log.Printf("[AUTH] First password set for user %s", user.ID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully!"})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate with username and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.FindByUsername(r.Context(), req.Username)
	if errors.Is(err, ErrNotFound) {
		log.Printf("[AUTH] User not found: %s", req.Username)
		SendErrorResponse(w, "Invalid username or password", http.StatusUnauthorized, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	if user.Status == models.UserStatusDeactive && user.Role != models.RoleAdmin {
		SendErrorResponse(w, "Your account is deactivated. Contact admin.", http.StatusForbidden, nil)
		return
	}
	if !user.PasswordChanged {
		SendErrorResponse(w, "Please set your password using username + ID first.", http.StatusForbidden, nil)
		return
	}
	if !s.verifyPassword(req.Password, user.Password) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		SendErrorResponse(w, "Invalid username or password", http.StatusUnauthorized, nil)
		return
	}

	token, err := s.issueToken(user, "", s.cfg.TokenTTL)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	WriteJSON(w, http.StatusOK, LoginResponse{Token: token, ID: user.ID, Name: user.Name, Role: user.Role})
}

// ChangePasswordAfterLogin rotates the authenticated user's password
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ChangePasswordAfterLoginRequest true "Password change request"
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Router /auth/change-password-after-login [post]
func (s *AuthService) ChangePasswordAfterLogin(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFrom(r.Context())
	if userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req ChangePasswordAfterLoginRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.users.FindUser(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}
	if !s.verifyPassword(req.OldPassword, user.Password) {
		SendErrorResponse(w, "Old password is incorrect", http.StatusUnauthorized, nil)
		return
	}

	if !s.storePassword(r.Context(), w, user.ID, req.NewPassword) {
		return
	}

	log.Printf("[AUTH] Password rotated for user %s", user.ID)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully!"})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r.Context())
	claims, ok := ClaimsFrom(r.Context())

	if token != "" && ok && s.redis != nil {
		ttl := s.cfg.TokenTTL
		if claims.ExpiresAt != nil {
			ttl = claims.ExpiresAt.Sub(s.now())
		}
		if ttl > 0 {
			if err := s.redis.Set(r.Context(), BlacklistKey(token), "1", ttl).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// BlacklistKey is the Redis key marking a revoked token.
func BlacklistKey(token string) string {
	return fmt.Sprintf("blacklist:%s", token)
}

func (s *AuthService) storePassword(ctx context.Context, w http.ResponseWriter, userID, password string) bool {
	hashed, err := HashPassword(s.cfg, password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", userID, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return false
	}
	if err := s.users.SetPassword(ctx, userID, hashed); err != nil {
		WriteError(w, err)
		return false
	}
	return true
}

func (s *AuthService) issueToken(user *models.User, action string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Action:   action,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	return VerifyPassword(s.cfg, password, hashedPassword)
}

// HashPassword derives an argon2id hash stored as base64(salt)$base64(hash).
func HashPassword(cfg *config.AuthConfig, password string) (string, error) {
	salt := make([]byte, cfg.Argon2SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, cfg.Argon2Time, cfg.Argon2Memory, cfg.Argon2Threads, cfg.Argon2KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func VerifyPassword(cfg *config.AuthConfig, password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, cfg.Argon2Time, cfg.Argon2Memory, cfg.Argon2Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computedHash) == 1
}
