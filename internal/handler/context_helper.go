package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/deptconnect/deptconnect-api/internal/middleware"
	"github.com/deptconnect/deptconnect-api/internal/models"
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

func actionClaimsFromContext(c *gin.Context) *models.ActionTokenClaims {
	value, exists := c.Get(middleware.ContextActionKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ActionTokenClaims)
	if !ok {
		return nil
	}
	return claims
}
