// Package testutil provides a fake Twitch API (OAuth token endpoint and Helix
// streams) for tests across packages.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch OAuth and Helix API responses
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	requests map[string][]*http.Request
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
		requests: make(map[string][]*http.Request),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		_ = r.ParseForm()
		m.mu.Lock()
		m.calls[key]++
		m.requests[key] = append(m.requests[key], r)
		handler, ok := m.handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for an exact path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Calls returns how many requests hit path.
func (m *MockTwitchServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// LastRequest returns the most recent request to path, or nil.
func (m *MockTwitchServer) LastRequest(path string) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := m.requests[path]
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// HTTPClient returns a client that sends every request, whatever its host,
// to the mock server. Production URLs (id.twitch.tv, api.twitch.tv) stay untouched in code under test.
func (m *MockTwitchServer) HTTPClient() *http.Client {
	return &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: m.URL}}
}

// MockStreamsResponse adds a handler for /helix/streams endpoint
func (m *MockTwitchServer) MockStreamsResponse(streams []map[string]interface{}) {
	m.MockStreamsSequence(streams)
}

// MockStreamsSequence answers successive /helix/streams calls with the given
// data arrays in order; the last one repeats.
func (m *MockTwitchServer) MockStreamsSequence(responses ...[]map[string]interface{}) {
	var mu sync.Mutex
	i := 0
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		data := responses[min(i, len(responses)-1)]
		i++
		mu.Unlock()
		if data == nil {
			data = []map[string]interface{}{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data}) //nolint:errcheck // test mock response
	})
}

// MockStreamsStatus makes /helix/streams fail with the given status code.
func (m *MockTwitchServer) MockStreamsStatus(code int) {
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"mock failure"}`))
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint. An empty
// refreshToken omits the field, as Twitch may do.
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		if refreshToken != "" {
			response["refresh_token"] = refreshToken
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	})
}

// MockOAuthTokenError makes the OAuth token endpoint fail with code.
func (m *MockTwitchServer) MockOAuthTokenError(code int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"status":400,"message":"Invalid refresh token"}`))
	})
}

type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	host := strings.TrimPrefix(t.host, "http://")
	host = strings.TrimPrefix(host, "https://")
	req.URL.Host = host
	return t.Transport.RoundTrip(req)
}
