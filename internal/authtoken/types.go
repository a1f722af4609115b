// Package authtoken caches per-user identity-provider access tokens and
// refreshes them proactively in the background, so request handlers never
// block on a sign-in round trip.
package authtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// FreshnessBuffer is how far ahead of expiry Get still considers a cached
// token usable before it forces a synchronous refresh.
const FreshnessBuffer = 5 * time.Minute

// RefreshLeadTime is how far ahead of expiry the background loop schedules
// its next proactive refresh.
const RefreshLeadTime = 10 * time.Minute

// Token is a cached identity-provider session.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	UserEmail    string
}

// Claims are the registered and user-identifying fields this system signs
// and verifies on its own HS256 tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Sentinel errors returned by Manager methods.
var (
	ErrSignInFailed   = errors.New("authtoken: sign-in failed")
	ErrNoRefreshToken = errors.New("authtoken: no refresh token available")
	ErrRefreshFailed  = errors.New("authtoken: token refresh failed")
	ErrTokenNotFound  = errors.New("authtoken: no cached token for user")
	ErrTokenExpired   = errors.New("authtoken: token has expired")
	ErrInvalidToken   = errors.New("authtoken: token is invalid")
)
