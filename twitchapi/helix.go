// Package twitchapi contains minimal helpers to interact with Twitch: the
// refresh-token grant behind TokenManager and the Helix streams lookup used
// to detect whether a channel is live.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultStatusTimeout bounds a single Helix streams request.
const DefaultStatusTimeout = 10 * time.Second

// AccessTokenSource yields a bearer token for Helix calls.
type AccessTokenSource interface {
	Get(ctx context.Context) (string, error)
}

// HelixClient provides the streams lookup.
type HelixClient struct {
	Tokens     AccessTokenSource
	ClientID   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Stream is one entry of the Helix /streams response.
type Stream struct {
	ID          string    `json:"id"`
	UserLogin   string    `json:"user_login"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// GetStreams returns the live streams of login; an empty slice means offline.
// Token failures are returned wrapped (errors.As finds *TokenRefreshError),
// request failures as *StatusQueryError.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	tok, err := hc.Tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}
	timeout := hc.Timeout
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitch.tv/helix/streams", nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("user_login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, &StatusQueryError{Kind: classifyTransportError(err), Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusQueryError{Kind: StatusHTTP, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s: %s", resp.Status, string(b))}
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		kind := StatusDecode
		if ctx.Err() != nil {
			kind = StatusTimeout
		}
		return nil, &StatusQueryError{Kind: kind, Err: err}
	}
	return body.Data, nil
}
