package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academy-import-api/internal/middleware"
	"github.com/noah-isme/academy-import-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func tokenFromContext(c *gin.Context) string {
	return c.GetString(middleware.ContextTokenKey)
}
