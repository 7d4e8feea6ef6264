package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/pkg/auth"
	"github.com/jwalitptl/queue-api/pkg/errors"
	"github.com/jwalitptl/queue-api/pkg/httputil"
)

const ContextClaims = "claims"

type AuthMiddleware struct {
	jwt *auth.JWTService
}

func NewAuthMiddleware(jwt *auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores its claims in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if header == "" || !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.RespondWithError(c, errors.Unauthorized(nil))
			c.Abort()
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			c.Abort()
			return
		}

		c.Set(ContextClaims, claims)
		c.Next()
	}
}

// RequireAdmin lets through organization admins only. It must run after
// Authenticate.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok || claims.Role != model.UserRoleAdmin || claims.OrganizationID == nil {
			httputil.RespondWithError(c, errors.Forbidden("admin access required", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func Claims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

// UserID returns the authenticated user, or uuid.Nil.
func UserID(c *gin.Context) uuid.UUID {
	if claims, ok := Claims(c); ok {
		return claims.UserID
	}
	return uuid.Nil
}

// AdminOrganization returns the organization an admin manages, or nil for
// everyone else.
func AdminOrganization(c *gin.Context) *uuid.UUID {
	claims, ok := Claims(c)
	if !ok || claims.Role != model.UserRoleAdmin {
		return nil
	}
	return claims.OrganizationID
}
