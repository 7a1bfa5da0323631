package service

import (
	"context"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type identityProvider interface {
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
}

// AccountService manages staff accounts held by the identity provider.
type AccountService struct {
	provider  identityProvider
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(provider identityProvider, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{provider: provider, validator: validate, logger: logger}
}

// SignUp registers a new account.
func (s *AccountService) SignUp(ctx context.Context, req models.SignUpRequest) (*models.Profile, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid sign up payload")
	}

	params := (&auth.UserToCreate{}).Email(req.Email).Password(req.Password)
	if req.DisplayName != "" {
		params = params.DisplayName(req.DisplayName)
	}
	user, err := s.provider.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		s.logger.Warn("create account failed", zap.Error(err))
		return nil, appErrors.ErrServiceUnavailable.With(err, "failed to create account")
	}
	s.logger.Info("account created", zap.String("uid", user.UID))
	return profileFromRecord(user), nil
}

// RequestPasswordReset generates a reset link for email.
func (s *AccountService) RequestPasswordReset(ctx context.Context, req models.PasswordResetRequest) (*models.PasswordResetResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid password reset payload")
	}
	link, err := s.provider.PasswordResetLink(ctx, req.Email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no account for that email")
		}
		return nil, appErrors.ErrServiceUnavailable.With(err, "failed to generate reset link")
	}
	return &models.PasswordResetResponse{Email: req.Email, Link: link}, nil
}

// Profile returns the account behind uid.
func (s *AccountService) Profile(ctx context.Context, uid string) (*models.Profile, error) {
	user, err := s.provider.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.ErrServiceUnavailable.With(err, "failed to load account")
	}
	return profileFromRecord(user), nil
}

// UpdateProfile changes display name and photo.
func (s *AccountService) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	if req.DisplayName == nil && req.PhotoURL == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fields to update")
	}

	params := &auth.UserToUpdate{}
	if req.DisplayName != nil {
		params = params.DisplayName(strings.TrimSpace(*req.DisplayName))
	}
	if req.PhotoURL != nil {
		params = params.PhotoURL(strings.TrimSpace(*req.PhotoURL))
	}
	user, err := s.provider.UpdateUser(ctx, uid, params)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.ErrServiceUnavailable.With(err, "failed to update profile")
	}
	return profileFromRecord(user), nil
}

func profileFromRecord(user *auth.UserRecord) *models.Profile {
	if user == nil || user.UserInfo == nil {
		return &models.Profile{}
	}
	return &models.Profile{
		UID:         user.UID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		PhotoURL:    user.PhotoURL,
	}
}
