package auth

import (
	"buildtrack-backend/internal/models"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestAuthenticate_RoundTrip(t *testing.T) {
	p := Principal{UserID: uuid.New(), Role: models.RoleInspector, Name: "Ines"}
	token, err := NewAccessToken(p, testSecret, time.Hour)
	require.NoError(t, err)

	got, err := NewSessionResolver(testSecret).Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestAuthenticate_Rejects(t *testing.T) {
	valid := Principal{UserID: uuid.New(), Role: models.RoleContractor}

	expired, err := NewAccessToken(valid, testSecret, -time.Minute)
	require.NoError(t, err)
	otherSecret, err := NewAccessToken(valid, "another-secret", time.Hour)
	require.NoError(t, err)
	noRole, err := NewAccessToken(Principal{UserID: uuid.New()}, testSecret, time.Hour)
	require.NoError(t, err)
	noUser, err := NewAccessToken(Principal{Role: models.RoleAdmin}, testSecret, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{UserID: valid.UserID, Role: valid.Role}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	resolver := NewSessionResolver(testSecret)
	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": otherSecret,
		"missing role": noRole,
		"missing user": noUser,
		"unsigned":     none,
		"garbage":      "not-a-token",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := resolver.Authenticate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("")
	assert.False(t, ok)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	p := Principal{UserID: uuid.New(), Role: models.RoleAdmin}
	got, ok := PrincipalFromContext(WithPrincipal(context.Background(), p))
	assert.True(t, ok)
	assert.Equal(t, p, got)
}
