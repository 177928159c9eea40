package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Static errors for err113 compliance.
var (
	ErrNoCredentials = errors.New("no valid credentials available")
)

// DefaultScopes are requested when OAuth2Config.Scopes is empty.
var DefaultScopes = []string{"read"}

// OAuth2Config configures an OAuth2TokenManager.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	// RefreshToken is exchanged before falling back to client credentials.
	RefreshToken string
	// AccessToken seeds the manager with an already issued token.
	AccessToken string
	HTTPClient  *http.Client
}

// OAuth2TokenManager obtains tokens from an instance's /oauth/token endpoint
// and refreshes them when they expire.
type OAuth2TokenManager struct {
	config *OAuth2Config
	store  *TokenStore
	mu     sync.Mutex
}

// NewOAuth2TokenManager creates a manager from config.
func NewOAuth2TokenManager(config *OAuth2Config) *OAuth2TokenManager {
	m := &OAuth2TokenManager{
		config: config,
		store:  NewTokenStore(),
	}

	if config.AccessToken != "" {
		m.store.Set(&Token{AccessToken: config.AccessToken, TokenType: "bearer", RefreshToken: config.RefreshToken})
	}

	return m
}

// NewInstanceTokenManager creates a client_credentials manager for the
// instance at baseURL.
func NewInstanceTokenManager(baseURL, clientID, clientSecret string, scopes ...string) *OAuth2TokenManager {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	return NewOAuth2TokenManager(&OAuth2Config{
		TokenURL:     strings.TrimSuffix(baseURL, "/") + "/oauth/token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
	})
}

// GetToken returns a valid access token, fetching a new one if needed.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	token := m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another caller may have refreshed while we waited
	token = m.store.Get()
	if token.Valid() {
		return token.AccessToken, nil
	}

	err := m.refreshLocked(ctx)
	if err != nil {
		return "", err
	}

	return m.store.Get().AccessToken, nil
}

// RefreshToken forces a new token.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx)
}

// SetToken replaces the current token.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	refresh := ""
	if current := m.store.Get(); current != nil {
		refresh = current.RefreshToken
	}

	m.store.Set(&Token{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt, RefreshToken: refresh})
}

// Current returns the stored token, or nil.
func (m *OAuth2TokenManager) Current() *Token {
	return m.store.Get()
}

func (m *OAuth2TokenManager) refreshLocked(ctx context.Context) error {
	if m.config.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.config.HTTPClient)
	}

	refresh := m.config.RefreshToken
	if current := m.store.Get(); current != nil && current.RefreshToken != "" {
		refresh = current.RefreshToken
	}

	var (
		issued *oauth2.Token
		err    error
	)

	switch {
	case refresh != "" && m.config.TokenURL != "":
		cfg := &oauth2.Config{
			ClientID:     m.config.ClientID,
			ClientSecret: m.config.ClientSecret,
			Scopes:       m.config.Scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: m.config.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}
		issued, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	case m.config.ClientID != "" && m.config.ClientSecret != "" && m.config.TokenURL != "":
		cfg := &clientcredentials.Config{
			ClientID:     m.config.ClientID,
			ClientSecret: m.config.ClientSecret,
			TokenURL:     m.config.TokenURL,
			Scopes:       m.config.Scopes,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		issued, err = cfg.Token(ctx)
	default:
		return ErrNoCredentials
	}

	if err != nil {
		return fmt.Errorf("requesting token from %s: %w", m.config.TokenURL, err)
	}

	token := &Token{
		AccessToken:  issued.AccessToken,
		TokenType:    issued.TokenType,
		RefreshToken: issued.RefreshToken,
		ExpiresAt:    issued.Expiry,
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refresh
	}

	if scope, ok := issued.Extra("scope").(string); ok {
		token.Scope = scope
	}

	m.store.Set(token)

	return nil
}
