package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/isdm-app/isdm-api/internal/middleware"
	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) (*models.AuthClaims, error) {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	return claims, nil
}
