package authtoken

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/langconnect/mcp-control-plane/internal/obslog"
)

// Manager signs users in against the configured identity provider, caches
// their access tokens, and refreshes each one in the background ahead of
// expiry. One Manager is shared across every registered MCP server.
type Manager struct {
	apiBaseURL          string
	identityProviderURL string
	identityProviderKey string
	jwtSecret           []byte
	httpClient          *http.Client
	log                 zerolog.Logger

	mu     sync.Mutex
	tokens map[string]Token
	cancel map[string]context.CancelFunc

	wg sync.WaitGroup
}

// Config configures a Manager. The identity-provider fields mirror the
// original Supabase-backed deployment but are transport-agnostic: any
// provider that speaks the same sign-in/refresh JSON contract works.
type Config struct {
	APIBaseURL          string
	IdentityProviderURL string
	IdentityProviderKey string
	JWTSecret           string
	RequestTimeout      time.Duration
}

// NewManager builds a Manager. Outbound identity-provider calls use the
// standard library's net/http client directly: this is the one ambient
// concern in this codebase with no corresponding third-party client in the
// retrieved stack, so it is deliberately left on the standard library
// rather than introduced speculatively.
func NewManager(cfg Config) *Manager {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		apiBaseURL:          cfg.APIBaseURL,
		identityProviderURL: cfg.IdentityProviderURL,
		identityProviderKey: cfg.IdentityProviderKey,
		jwtSecret:           []byte(cfg.JWTSecret),
		httpClient:          &http.Client{Timeout: timeout},
		log:                 obslog.Component("authtoken"),
		tokens:              make(map[string]Token),
		cancel:              make(map[string]context.CancelFunc),
	}
}

type signInResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SignIn authenticates email/password against the API's sign-in endpoint,
// caches the resulting token, and starts its background refresh loop.
func (m *Manager) SignIn(ctx context.Context, email, password string) (Token, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiBaseURL+"/auth/signin", bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: status %d", ErrSignInFailed, resp.StatusCode)
	}

	var data signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Token{}, fmt.Errorf("%w: decoding response: %v", ErrSignInFailed, err)
	}

	claims, err := decodeUnverified(data.AccessToken)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrSignInFailed, err)
	}

	token := Token{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
		UserID:       claims.Subject,
		UserEmail:    email,
	}

	m.store(token)
	m.startRefreshLoop(token.UserID)
	m.log.Info().Str("user_id", token.UserID).Str("email", email).Msg("user signed in")
	return token, nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges the cached refresh token for a new access token. The
// new token keeps the previously cached UserEmail, since the identity
// provider's refresh response carries no email field of its own.
func (m *Manager) Refresh(ctx context.Context, userID string) (Token, error) {
	m.mu.Lock()
	current, ok := m.tokens[userID]
	m.mu.Unlock()
	if !ok || current.RefreshToken == "" {
		return Token{}, ErrNoRefreshToken
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	url := m.identityProviderURL + "/auth/v1/token?grant_type=refresh_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", m.identityProviderKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var data refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Token{}, fmt.Errorf("%w: decoding response: %v", ErrRefreshFailed, err)
	}

	claims, err := decodeUnverified(data.AccessToken)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	refreshToken := data.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}

	newToken := Token{
		AccessToken:  data.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time,
		UserID:       claims.Subject,
		UserEmail:    current.UserEmail,
	}
	m.store(newToken)
	m.log.Info().Str("user_id", userID).Msg("token refreshed")
	return newToken, nil
}

// Get returns a currently valid access token for userID, transparently
// refreshing it first if it is within FreshnessBuffer of expiry.
func (m *Manager) Get(ctx context.Context, userID string) (string, error) {
	m.mu.Lock()
	token, ok := m.tokens[userID]
	m.mu.Unlock()
	if !ok {
		return "", ErrTokenNotFound
	}

	if time.Now().Add(FreshnessBuffer).Before(token.ExpiresAt) {
		return token.AccessToken, nil
	}

	m.log.Info().Str("user_id", userID).Msg("cached token near expiry, refreshing")
	refreshed, err := m.Refresh(ctx, userID)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Validate verifies an HS256-signed access token this system issued itself
// (as opposed to an upstream identity-provider token, which Get/Refresh
// handle opaquely) and returns its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignOut cancels userID's refresh loop and evicts its cached token.
func (m *Manager) SignOut(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancel[userID]; ok {
		cancel()
		delete(m.cancel, userID)
	}
	delete(m.tokens, userID)
	m.log.Info().Str("user_id", userID).Msg("user signed out")
}

// Close cancels every outstanding refresh loop and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, cancel := range m.cancel {
		cancel()
	}
	m.cancel = make(map[string]context.CancelFunc)
	m.tokens = make(map[string]Token)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) store(token Token) {
	m.mu.Lock()
	m.tokens[token.UserID] = token
	m.mu.Unlock()
}

func (m *Manager) startRefreshLoop(userID string) {
	m.mu.Lock()
	if cancel, ok := m.cancel[userID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel[userID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.refreshLoop(ctx, userID)
}

func (m *Manager) refreshLoop(ctx context.Context, userID string) {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		token, ok := m.tokens[userID]
		m.mu.Unlock()
		if !ok {
			return
		}

		wait := time.Until(token.ExpiresAt.Add(-RefreshLeadTime))
		if wait < 0 {
			wait = 0
		}

		m.log.Info().Str("user_id", userID).Dur("in", wait).Msg("scheduled next token refresh")
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := m.Refresh(ctx, userID); err != nil {
			m.log.Error().Err(err).Str("user_id", userID).Msg("background token refresh failed")
			return
		}
	}
}

func decodeUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return claims, nil
}
