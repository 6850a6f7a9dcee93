package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-import-api/internal/models"
	appErrors "github.com/noah-isme/academy-import-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleAdmin,
		Email:  "admin@academy.test",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "academy",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "academy"})

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), validClaims()))

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "academy"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	otherIssuer := validClaims()
	otherIssuer.Issuer = "elsewhere"

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims()),
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), expired),
		"issuer":       signToken(t, jwt.SigningMethodHS256, []byte("secret"), otherIssuer),
		"hs512":        signToken(t, jwt.SigningMethodHS512, []byte("secret"), validClaims()),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		_, err := svc.ValidateToken(token)
		require.Error(t, err, name)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code, name)
	}
}
