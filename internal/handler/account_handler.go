package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/response"
)

type accountService interface {
	SignUp(ctx context.Context, req models.SignUpRequest) (*models.Profile, error)
	RequestPasswordReset(ctx context.Context, req models.PasswordResetRequest) (*models.PasswordResetResponse, error)
	Profile(ctx context.Context, uid string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.Profile, error)
}

// AccountHandler wires staff account endpoints to the identity provider.
type AccountHandler struct {
	service accountService
}

// NewAccountHandler creates a new handler.
func NewAccountHandler(svc accountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// SignUp godoc
// @Summary Register a staff account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.SignUpRequest true "Sign-up payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/signup [post]
func (h *AccountHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrValidation.With(err, "invalid sign-up payload"))
		return
	}
	profile, err := h.service.SignUp(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, profile)
}

// PasswordReset godoc
// @Summary Request a password reset link
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.PasswordResetRequest true "Account email"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/password-reset [post]
func (h *AccountHandler) PasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrValidation.With(err, "invalid password reset payload"))
		return
	}
	res, err := h.service.RequestPasswordReset(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Profile godoc
// @Summary Current user profile
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /profile [get]
func (h *AccountHandler) Profile(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	profile, err := h.service.Profile(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile)
}

// UpdateProfile godoc
// @Summary Update display name or photo
// @Tags Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateProfileRequest true "Profile changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /profile [put]
func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	claims, err := claimsFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.ErrValidation.With(err, "invalid profile payload"))
		return
	}
	profile, err := h.service.UpdateProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, profile)
}
