package service

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"

	"github.com/isdm-app/isdm-api/internal/models"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
)

// TokenVerifier turns a bearer token into the caller's claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.AuthClaims, error)
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier checks Firebase ID tokens issued to the client apps.
type FirebaseVerifier struct {
	client idTokenVerifier
}

// NewFirebaseVerifier constructs a verifier backed by the Firebase Auth client.
func NewFirebaseVerifier(client idTokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify validates signature, audience and expiry of an ID token.
func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (*models.AuthClaims, error) {
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, appErrors.ErrUnauthorized.With(err, "invalid token")
	}
	claims := &models.AuthClaims{UserID: decoded.UID}
	if email, ok := decoded.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := decoded.Claims["name"].(string); ok {
		claims.Name = name
	}
	claims.Issuer = decoded.Issuer
	claims.Subject = decoded.Subject
	claims.ExpiresAt = jwt.NewNumericDate(time.Unix(decoded.Expires, 0))
	claims.IssuedAt = jwt.NewNumericDate(time.Unix(decoded.IssuedAt, 0))
	return claims, nil
}

// JWTVerifier validates HS256 tokens signed with a shared secret. It backs
// development and CLI access where no Firebase project is configured.
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTVerifier constructs a shared-secret verifier.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Verify parses and validates token.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*models.AuthClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &models.AuthClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, appErrors.ErrUnauthorized.With(err, "invalid token")
	}
	claims, ok := parsed.Claims.(*models.AuthClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Issue signs a token for userID valid for ttl.
func (v *JWTVerifier) Issue(userID, email string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := v.now().UTC()
	claims := &models.AuthClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
