package services

import (
	"context"

	"github.com/campuslib/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// ActionFirstChange marks the short-lived token issued by first login.
const ActionFirstChange = "first-change"

// Claims are carried by every token the service issues.
type Claims struct {
	UserID   string      `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role,omitempty"`
	Action   string      `json:"action,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const (
	userIDKey contextKey = "userID"
	claimsKey contextKey = "claims"
	tokenKey  contextKey = "token"
)

// WithClaims stores the authenticated caller and raw bearer token on ctx.
func WithClaims(ctx context.Context, claims *Claims, token string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, tokenKey, token)
}

// ClaimsFrom returns the authenticated caller, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// UserIDFrom returns the authenticated user id, or "".
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
