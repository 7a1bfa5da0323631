package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SignUpRequest registers a new staff account with the auth provider.
type SignUpRequest struct {
	Email           string `json:"email" validate:"required,isdmemail"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	DisplayName     string `json:"displayName,omitempty" validate:"omitempty,max=120"`
}

// PasswordResetRequest asks the provider for a password reset link.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,isdmemail"`
}

// PasswordResetResponse carries the generated reset link.
type PasswordResetResponse struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// UpdateProfileRequest edits the signed-in user's public profile.
type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,max=120"`
	PhotoURL    *string `json:"photoURL" validate:"omitempty,url"`
}

// Profile describes an account as returned to clients.
type Profile struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// AuthClaims identifies the caller of an authenticated request.
type AuthClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
