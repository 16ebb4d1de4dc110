package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-bulletin/internal/middleware"
	"github.com/noah-isme/sma-bulletin/internal/models"
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

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func formatParam(c *gin.Context) models.BulletinFormat {
	return models.BulletinFormat(c.Query("format"))
}
