package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"marketplace/auth"
	"marketplace/models"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

var (
	ErrAccountDisabled = errors.New("account is disabled")
	ErrAccountGone     = errors.New("account no longer matches the token")
)

// AccountCheck reports whether the account behind a verified token may still act.
// It returns ErrAccountDisabled or ErrAccountGone to reject the request.
type AccountCheck func(ctx context.Context, id auth.Identity) error

type AuthOption func(*authConfig)

type authConfig struct {
	check AccountCheck
}

// WithAccountCheck re-reads the account on every request so deactivation takes
// effect before the token expires.
func WithAccountCheck(check AccountCheck) AuthOption {
	return func(cfg *authConfig) { cfg.check = check }
}

// JWTAuth rejects requests without a valid bearer token and stores the caller's identity.
func JWTAuth(tokens *auth.TokenManager, opts ...AuthOption) gin.HandlerFunc {
	var cfg authConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(c *gin.Context) {
		// CORS preflight carries no credentials
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// browsers cannot set headers on websocket upgrades
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Authentication required",
				"message": "No authorization token provided",
			})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid authorization header",
				"message": "Format should be: Bearer <token>",
			})
			return
		}

		id, err := tokens.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			msg := "Token validation failed"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"message": msg,
			})
			return
		}

		if cfg.check != nil {
			if err := cfg.check(c.Request.Context(), id); err != nil {
				switch {
				case errors.Is(err, ErrAccountDisabled):
					c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is disabled"})
				case errors.Is(err, ErrAccountGone):
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
						"error":   "Invalid token",
						"message": "Please sign in again",
					})
				default:
					c.Error(err)
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
				}
				return
			}
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// RequireRoles must run after JWTAuth.
func RequireRoles(allowed ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		for _, role := range allowed {
			if id.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "Forbidden",
			"message": "You do not have permission to access this resource",
		})
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}

func CurrentIdentity(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
