package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TokenRefreshError reports a failed refresh_token exchange (network, HTTP
// status, malformed response, or missing credentials).
type TokenRefreshError struct {
	Err error
}

func (e *TokenRefreshError) Error() string { return "twitch token refresh: " + e.Err.Error() }
func (e *TokenRefreshError) Unwrap() error { return e.Err }

// StatusKind distinguishes stream status failures for logging.
type StatusKind int

const (
	StatusNetwork StatusKind = iota
	StatusTimeout
	StatusHTTP
	StatusDecode
)

func (k StatusKind) String() string {
	switch k {
	case StatusTimeout:
		return "timeout"
	case StatusHTTP:
		return "http"
	case StatusDecode:
		return "decode"
	default:
		return "network"
	}
}

// StatusQueryError reports a failed Helix streams request.
type StatusQueryError struct {
	Kind       StatusKind
	StatusCode int
	Err        error
}

func (e *StatusQueryError) Error() string {
	if e.Kind == StatusHTTP {
		return fmt.Sprintf("twitch streams query failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("twitch streams query failed (%s): %v", e.Kind, e.Err)
}

func (e *StatusQueryError) Unwrap() error { return e.Err }

func classifyTransportError(err error) StatusKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusTimeout
	}
	return StatusNetwork
}
