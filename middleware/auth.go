package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"
	"catalog-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// Authenticator resolves a bearer token to its claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*services.Claims, error)
}

// RequireAuth rejects requests without a valid, unrevoked bearer token and
// stores the claims on the context for later handlers.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := apperrors.StatusCode(err)
			if status != http.StatusUnauthorized {
				zap.L().Error("token check failed", zap.Error(err))
				abort(c, status, "Unable to verify token")
				return
			}
			msg := "Unauthenticated."
			if errors.Is(err, apperrors.ErrTokenRevoked) {
				msg = "Token has been revoked"
			}
			abort(c, http.StatusUnauthorized, msg)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID.String())
		c.Set(RoleKey, string(claims.Role))
		c.Next()
	}
}

// RequireRole lets the request through only when the authenticated role is
// one of roles. It must run after RequireAuth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Unauthenticated.")
			return
		}
		if !allowed[claims.Role] {
			abort(c, http.StatusForbidden, "This action is unauthorized.")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireAuth.
func ClaimsFrom(c *gin.Context) (*services.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*services.Claims)
	return claims, ok && claims != nil
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}
