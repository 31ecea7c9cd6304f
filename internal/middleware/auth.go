package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
)

// Authenticator verifies bearer tokens and rejects revoked ones. A nil
// redis client skips the revocation check.
type Authenticator struct {
	secret []byte
	redis  *redis.Client
}

func NewAuthenticator(secret string, redisClient *redis.Client) *Authenticator {
	return &Authenticator{secret: []byte(secret), redis: redisClient}
}

// Authenticate admits regular session tokens only.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return a.handler(next, false)
}

// AuthenticateAny also admits the first-login setup token.
func (a *Authenticator) AuthenticateAny(next http.Handler) http.Handler {
	return a.handler(next, true)
}

func (a *Authenticator) handler(next http.Handler, allowSetup bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "No token provided", http.StatusUnauthorized, nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}
		token := parts[1]

		claims, err := a.validateToken(token)
		if err != nil {
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}
		if claims.Action == services.ActionFirstChange && !allowSetup {
			services.SendErrorResponse(w, "Please set your password first", http.StatusForbidden, nil)
			return
		}

		if a.redis != nil {
			revoked, err := a.redis.Exists(r.Context(), services.BlacklistKey(token)).Result()
			if err != nil {
				log.Printf("[AUTH] Blacklist lookup failed: %v", err)
			} else if revoked > 0 {
				services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(services.WithClaims(r.Context(), claims, token)))
	})
}

func (a *Authenticator) validateToken(tokenString string) (*services.Claims, error) {
	claims := &services.Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireRoles admits callers whose token carries one of roles.
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := services.ClaimsFrom(r.Context())
			if !ok {
				services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			services.SendErrorResponse(w, "Access denied", http.StatusForbidden, nil)
		})
	}
}
