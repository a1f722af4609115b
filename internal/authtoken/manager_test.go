package authtoken

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueToken(t *testing.T, secret []byte, userID string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestSignIn_CachesTokenAndStartsRefreshLoop(t *testing.T) {
	secret := []byte("test-secret")
	accessToken := issueToken(t, secret, "user-1", time.Hour)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + accessToken + `","refresh_token":"refresh-1"}`))
	}))
	defer api.Close()

	m := NewManager(Config{APIBaseURL: api.URL, JWTSecret: string(secret)})
	defer m.Close()

	token, err := m.SignIn(t.Context(), "user@example.com", "password")
	require.NoError(t, err)
	assert.Equal(t, "user-1", token.UserID)
	assert.Equal(t, "user@example.com", token.UserEmail)
	assert.Equal(t, "refresh-1", token.RefreshToken)
}

func TestGet_ReturnsNotFoundForUnknownUser(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	_, err := m.Get(t.Context(), "nobody")

	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRefresh_PreservesCachedEmailAcrossRefresh(t *testing.T) {
	secret := []byte("test-secret")
	signInToken := issueToken(t, secret, "user-2", time.Minute)
	refreshedToken := issueToken(t, secret, "user-2", time.Hour)

	signInCalls := 0
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		signInCalls++
		w.Write([]byte(`{"access_token":"` + signInToken + `","refresh_token":"refresh-2"}`))
	}))
	defer api.Close()

	idp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + refreshedToken + `"}`))
	}))
	defer idp.Close()

	m := NewManager(Config{APIBaseURL: api.URL, IdentityProviderURL: idp.URL, JWTSecret: string(secret)})
	defer m.Close()

	_, err := m.SignIn(t.Context(), "person@example.com", "password")
	require.NoError(t, err)
	require.Equal(t, 1, signInCalls)

	refreshed, err := m.Refresh(t.Context(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, "person@example.com", refreshed.UserEmail)
	assert.Equal(t, "refresh-2", refreshed.RefreshToken, "missing refresh_token in response keeps the prior one")
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	expired := issueToken(t, secret, "user-3", -time.Minute)

	m := NewManager(Config{JWTSecret: string(secret)})
	defer m.Close()

	_, err := m.Validate(expired)

	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestSignOut_EvictsCachedToken(t *testing.T) {
	secret := []byte("test-secret")
	accessToken := issueToken(t, secret, "user-4", time.Hour)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"` + accessToken + `","refresh_token":"refresh-4"}`))
	}))
	defer api.Close()

	m := NewManager(Config{APIBaseURL: api.URL, JWTSecret: string(secret)})
	defer m.Close()

	_, err := m.SignIn(t.Context(), "user4@example.com", "password")
	require.NoError(t, err)

	m.SignOut("user-4")

	_, err = m.Get(t.Context(), "user-4")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
