package services

import (
	"testing"
	"time"

	"catalog-service/models"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RoundTrip(t *testing.T) {
	ts, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Email: "ihsan@gmail.com", Role: models.RoleAdmin}

	token, issued, err := ts.Generate(user)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.TokenID)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, issued.TokenID, claims.TokenID)
	assert.Equal(t, issued.ExpiresAt.Unix(), claims.ExpiresAt.Unix())

	_, second, err := ts.Generate(user)
	require.NoError(t, err)
	assert.NotEqual(t, issued.TokenID, second.TokenID, "each login gets its own token id")
}

func TestTokenService_Rejects(t *testing.T) {
	ts, err := NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenService("other-secret", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Email: "a@b.c", Role: models.RoleUser}

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := other.Generate(user)
		require.NoError(t, err)
		_, err = ts.Validate(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		ts.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		defer func() { ts.now = time.Now }()
		token, _, err := ts.Generate(user)
		require.NoError(t, err)
		ts.now = time.Now
		_, err = ts.Validate(token)
		assert.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": user.ID.String(),
			"typ": "refresh",
			"jti": "x",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = ts.Validate(signed)
		assert.EqualError(t, err, "invalid token type")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ts.Validate("not.a.token")
		assert.Error(t, err)
	})

	_, err = NewTokenService("", time.Hour)
	assert.Error(t, err)
}
