// Package auth provides the token managers behind the HTTP engine's bearer
// authentication.
package auth

import (
	"context"
	"sync"
	"time"
)

// expiryBuffer treats tokens about to expire as already expired.
const expiryBuffer = 30 * time.Second

// TokenManager supplies bearer tokens.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
}

// Token is an OAuth2 access token as returned by /oauth/token.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Valid reports whether the token can be used. Mastodon tokens usually
// carry no expiry and stay valid until revoked.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(expiryBuffer).Before(t.ExpiresAt)
}

// TokenStore holds the current token for concurrent readers.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
}

// StaticTokenManager returns a fixed token.
type StaticTokenManager struct {
	token string
}

// NewStaticTokenManager creates a manager for a pre-issued access token.
func NewStaticTokenManager(token string) *StaticTokenManager {
	return &StaticTokenManager{token: token}
}

func (m *StaticTokenManager) GetToken(context.Context) (string, error) {
	if m.token == "" {
		return "", ErrNoCredentials
	}

	return m.token, nil
}
