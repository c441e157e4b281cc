package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// ExpiryMargin is subtracted from the advertised token lifetime so a token
// never expires in the middle of a Helix call.
const ExpiryMargin = 60 * time.Second

// Endpoint is the Twitch OAuth token endpoint. Client credentials travel as
// form parameters alongside grant_type=refresh_token.
var Endpoint = twitch.Endpoint

// RefreshResult represents the response from a refresh_token grant.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// ComputeExpiry returns the instant a token fetched at now stops being used:
// now + seconds - ExpiryMargin, with an unknown lifetime treated as 60m.
// Lifetimes of two minutes or less keep half of their TTL instead, so a
// short-lived token is still reused at least once.
func ComputeExpiry(now time.Time, seconds int) time.Time {
	ttl := time.Duration(seconds) * time.Second
	if seconds <= 0 {
		ttl = 60 * time.Minute
	}
	margin := ExpiryMargin
	if ttl < 2*margin {
		margin = ttl / 2
	}
	return now.Add(ttl - margin)
}

// RefreshToken exchanges a refresh token for a new access token. The returned
// RefreshToken equals the input when the provider did not rotate it.
func RefreshToken(ctx context.Context, hc *http.Client, endpoint oauth2.Endpoint, clientID, clientSecret, refreshToken string) (*RefreshResult, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, errors.New("missing clientID/clientSecret/refreshToken")
	}
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	oc := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     endpoint,
	}
	tok, err := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, errors.New("empty access_token in twitch response")
	}
	rt := tok.RefreshToken
	if rt == "" {
		rt = refreshToken
	}
	return &RefreshResult{AccessToken: tok.AccessToken, RefreshToken: rt, ExpiresIn: expiresIn(tok)}, nil
}

// expiresIn reads the raw expires_in field; oauth2 only exposes an absolute
// Expiry computed from the wall clock.
func expiresIn(tok *oauth2.Token) int {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int(time.Until(tok.Expiry).Seconds())
	}
	return 0
}
