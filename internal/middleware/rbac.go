package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
	"github.com/noah-isme/academy-import-api/pkg/response"
)

// RBAC lets through only callers whose token carries one of the allowed roles. It must run after JWT.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		roles[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
