package twitchapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
)

// DefaultRefreshTimeout bounds one refresh_token exchange.
const DefaultRefreshTimeout = 10 * time.Second

// CredentialStore persists a rotated refresh token.
type CredentialStore interface {
	SaveRefreshToken(token string) error
}

// TokenManager owns a user access token minted from a long-lived refresh token.
// Rotated refresh tokens are written through Store so a restart picks them up.
type TokenManager struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	// RefreshTimeout bounds the token exchange; zero means DefaultRefreshTimeout.
	RefreshTimeout time.Duration
	// Endpoint defaults to the Twitch token endpoint.
	Endpoint oauth2.Endpoint
	Store    CredentialStore
	Clock    clockwork.Clock
	// OnRefreshError is called after every failed refresh, outside the lock.
	OnRefreshError func(ctx context.Context, err error)

	mu           sync.Mutex
	refreshToken string
	token        string
	expiresAt    time.Time
}

// NewTokenManager returns a manager with no cached access token.
func NewTokenManager(clientID, clientSecret, refreshToken string, store CredentialStore) *TokenManager {
	return &TokenManager{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Store:        store,
		refreshToken: refreshToken,
	}
}

func (tm *TokenManager) clock() clockwork.Clock {
	if tm.Clock != nil {
		return tm.Clock
	}
	return clockwork.NewRealClock()
}

// Get returns the cached access token while it is valid and refreshes it otherwise.
// Failures are returned as *TokenRefreshError and are not retried.
func (tm *TokenManager) Get(ctx context.Context) (string, error) {
	tok, err := tm.get(ctx)
	if err != nil {
		slog.Warn("twitch token refresh failed", slog.Any("err", err), slog.String("component", "twitch_token"))
		if tm.OnRefreshError != nil {
			tm.OnRefreshError(ctx, err)
		}
		return "", err
	}
	return tok, nil
}

func (tm *TokenManager) get(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := tm.clock().Now()
	if tm.token != "" && now.Before(tm.expiresAt) {
		return tm.token, nil
	}
	endpoint := tm.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = Endpoint
	}
	timeout := tm.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := RefreshToken(rctx, tm.HTTPClient, endpoint, tm.ClientID, tm.ClientSecret, tm.refreshToken)
	if err != nil {
		return "", &TokenRefreshError{Err: err}
	}
	tm.token = res.AccessToken
	tm.expiresAt = ComputeExpiry(now, res.ExpiresIn)
	if res.RefreshToken != tm.refreshToken {
		tm.refreshToken = res.RefreshToken
		if tm.Store != nil {
			// The rotated token is already usable in memory; a failed write only matters after a restart.
			if err := tm.Store.SaveRefreshToken(res.RefreshToken); err != nil {
				slog.Error("failed to persist rotated refresh token", slog.Any("err", err), slog.String("component", "twitch_token"))
			}
		}
		slog.Info("twitch refresh token rotated", slog.String("component", "twitch_token"))
	}
	slog.Info("twitch access token refreshed", slog.Time("expires_at", tm.expiresAt), slog.String("component", "twitch_token"))
	return tm.token, nil
}

// seed primes the cache with a token minted elsewhere.
func (tm *TokenManager) seed(token string, expiresAt time.Time) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.token = token
	tm.expiresAt = expiresAt
}

// expiry reports when the cached access token stops being reused.
func (tm *TokenManager) expiry() time.Time {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.expiresAt
}

// RefreshToken returns the current refresh token.
func (tm *TokenManager) RefreshToken() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.refreshToken
}
