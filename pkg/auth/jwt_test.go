package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	svc, err := NewJWTService("secret", "queue-api")
	require.NoError(t, err)

	userID, orgID := uuid.New(), uuid.New()
	token, err := svc.GenerateAccessToken(userID, &orgID, "admin", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	require.NotNil(t, claims.OrganizationID)
	assert.Equal(t, orgID, *claims.OrganizationID)
	assert.Equal(t, "admin", claims.Role)
}

func TestJWTRejects(t *testing.T) {
	svc, err := NewJWTService("secret", "queue-api")
	require.NoError(t, err)
	other, err := NewJWTService("other", "queue-api")
	require.NoError(t, err)

	expired, err := svc.GenerateAccessToken(uuid.New(), nil, "customer", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(uuid.New(), nil, "customer", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: uuid.New()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":   expired,
		"foreign":   foreign,
		"none":      none,
		"malformed": "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService("", "")
	assert.Error(t, err)
}
