// internal/auth/jwt_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratum/internal/core"
)

func TestCreateAndAuthenticateJWT(t *testing.T) {
	Init()
	playerID := uuid.NewString()

	token, err := CreateJWT(playerID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, playerID, sub)

	_, err = AuthenticateJWT(token + "tampered")
	assert.Error(t, err)
}

func TestPlayerIDFromRequestSources(t *testing.T) {
	Init()
	playerID := uuid.New()
	token, err := CreateJWT(playerID.String())
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/session/active", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		got, err := PlayerIDFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, playerID, got)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/session/active", nil)
		r.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
		got, err := PlayerIDFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, playerID, got)
	})

	t.Run("query param", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/game/ws/x?token="+token, nil)
		got, err := PlayerIDFromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, playerID, got)
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/session/active", nil)
		_, err := PlayerIDFromRequest(r)
		assert.True(t, core.IsValidation(err))
	})

	t.Run("non-uuid subject", func(t *testing.T) {
		bad, err := CreateJWT("not-a-player")
		require.NoError(t, err)
		r := httptest.NewRequest(http.MethodGet, "/session/active", nil)
		r.Header.Set("Authorization", "Bearer "+bad)
		_, err = PlayerIDFromRequest(r)
		assert.True(t, core.IsValidation(err))
	})
}
