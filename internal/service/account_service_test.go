package service

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

type fakeIdentityProvider struct {
	created   int
	resetFor  string
	updatedID string
	record    *auth.UserRecord
	err       error
}

func (f *fakeIdentityProvider) CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error) {
	f.created++
	return f.record, f.err
}

func (f *fakeIdentityProvider) PasswordResetLink(ctx context.Context, email string) (string, error) {
	f.resetFor = email
	if f.err != nil {
		return "", f.err
	}
	return "https://isdm.example/reset?oobCode=abc", nil
}

func (f *fakeIdentityProvider) GetUser(ctx context.Context, uid string) (*auth.UserRecord, error) {
	return f.record, f.err
}

func (f *fakeIdentityProvider) UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error) {
	f.updatedID = uid
	return f.record, f.err
}

func staffRecord() *auth.UserRecord {
	return &auth.UserRecord{UserInfo: &auth.UserInfo{UID: "uid-1", Email: "staff@isdm.edu.ar", DisplayName: "Staff"}}
}

func TestAccountServiceSignUp(t *testing.T) {
	provider := &fakeIdentityProvider{record: staffRecord()}
	svc := NewAccountService(provider, nil, nil)

	profile, err := svc.SignUp(context.Background(), models.SignUpRequest{
		Email: " staff@isdm.edu.ar ", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", profile.UID)
	assert.Equal(t, 1, provider.created)
}

func TestAccountServiceSignUpValidation(t *testing.T) {
	cases := map[string]models.SignUpRequest{
		"short password":   {Email: "staff@isdm.edu.ar", Password: "12345", ConfirmPassword: "12345"},
		"mismatch":         {Email: "staff@isdm.edu.ar", Password: "secret1", ConfirmPassword: "secret2"},
		"invalid email":    {Email: "staff@isdm", Password: "secret1", ConfirmPassword: "secret1"},
		"missing password": {Email: "staff@isdm.edu.ar"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			provider := &fakeIdentityProvider{record: staffRecord()}
			_, err := NewAccountService(provider, nil, nil).SignUp(context.Background(), req)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
			assert.Zero(t, provider.created)
		})
	}
}

func TestAccountServicePasswordReset(t *testing.T) {
	provider := &fakeIdentityProvider{}
	svc := NewAccountService(provider, nil, nil)

	res, err := svc.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "staff@isdm.edu.ar"})
	require.NoError(t, err)
	assert.Contains(t, res.Link, "oobCode")
	assert.Equal(t, "staff@isdm.edu.ar", provider.resetFor)

	_, err = svc.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "bad"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceProviderFailure(t *testing.T) {
	svc := NewAccountService(&fakeIdentityProvider{err: errors.New("backend down")}, nil, nil)
	_, err := svc.Profile(context.Background(), "uid-1")
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceUpdateProfile(t *testing.T) {
	provider := &fakeIdentityProvider{record: staffRecord()}
	svc := NewAccountService(provider, nil, nil)

	name := "Nuevo Nombre"
	_, err := svc.UpdateProfile(context.Background(), "uid-1", models.UpdateProfileRequest{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", provider.updatedID)

	_, err = svc.UpdateProfile(context.Background(), "uid-1", models.UpdateProfileRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	photo := "not a url"
	_, err = svc.UpdateProfile(context.Background(), "uid-1", models.UpdateProfileRequest{PhotoURL: &photo})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
