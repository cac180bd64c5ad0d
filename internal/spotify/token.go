package spotify

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenManager caches the access token issued for the configured refresh
// token and refreshes it lazily once it has expired.
//
// All methods are safe for concurrent use. Callers arriving while a refresh
// is in flight wait for it and share its result.
type TokenManager struct {
	conf       *oauth2.Config
	httpClient *http.Client
	logger     logrus.FieldLogger
	now        func() time.Time

	mu           sync.Mutex
	refreshToken string
	token        *oauth2.Token
}

// NewTokenManager creates a TokenManager. A nil httpClient uses [http.DefaultClient].
func NewTokenManager(conf *oauth2.Config, refreshToken string, httpClient *http.Client, logger logrus.FieldLogger) *TokenManager {
	return &TokenManager{
		conf:         conf,
		httpClient:   httpClient,
		logger:       logger,
		now:          time.Now,
		refreshToken: refreshToken,
	}
}

// EnsureValid returns the cached access token, refreshing it first when
// none is cached or the cached one has expired.
func (m *TokenManager) EnsureValid(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != nil && m.now().Before(m.token.Expiry) {
		return m.token, nil
	}
	return m.refresh(ctx)
}

// Refresh exchanges the refresh token for a new access token regardless of
// the cached token's state.
func (m *TokenManager) Refresh(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refresh(ctx)
}

// SetRefreshToken replaces the refresh token and drops the cached access
// token so the next call is made with the new grant.
func (m *TokenManager) SetRefreshToken(refreshToken string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshToken = refreshToken
	m.token = nil
}

// HasRefreshToken reports whether a refresh token is configured.
func (m *TokenManager) HasRefreshToken() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshToken != ""
}

// refresh must be called with mu held.
func (m *TokenManager) refresh(ctx context.Context) (*oauth2.Token, error) {
	if m.refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	issuedAt := m.now()
	tok, err := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: m.refreshToken}).Token()
	if err != nil {
		m.logger.WithError(err).Error("failed to refresh access token")
		return nil, err
	}

	if ttl, ok := expiresIn(tok); ok {
		tok.Expiry = issuedAt.Add(ttl)
	} else if tok.Expiry.IsZero() {
		tok.Expiry = issuedAt
	}

	if tok.RefreshToken != "" && tok.RefreshToken != m.refreshToken {
		m.logger.Info("spotify rotated the refresh token")
		m.refreshToken = tok.RefreshToken
	}

	m.token = tok
	m.logger.WithField("expiry", tok.Expiry).Debug("access token refreshed")
	return tok, nil
}

// expiresIn reads the expires_in field of the token response. oauth2 only
// converts it to an absolute Expiry against the real clock.
func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	var secs float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		secs = v
	case int64:
		secs = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		secs = f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		secs = f
	default:
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
