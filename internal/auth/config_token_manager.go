package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/masto/pkg/masto"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister saves refreshed tokens, typically to the CLI config file.
type ConfigPersister interface {
	UpdateInstanceToken(instance, token string, expiresAt time.Time, refreshToken string) error
}

// ConfigTokenManager wraps an OAuth2TokenManager and persists every newly
// issued token.
type ConfigTokenManager struct {
	oauth2Manager   *OAuth2TokenManager
	configPersister ConfigPersister
	instance        string
	logger          masto.Logger

	mu       sync.Mutex
	lastSeen string
}

// NewConfigTokenManager creates a config-persisting token manager. A
// non-empty initialToken is used until it expires.
func NewConfigTokenManager(config *OAuth2Config, persister ConfigPersister, instance, initialToken string, initialExpiry time.Time, logger masto.Logger) *ConfigTokenManager {
	oauth2Manager := NewOAuth2TokenManager(config)

	if initialToken != "" {
		oauth2Manager.SetToken(initialToken, initialExpiry)
	}

	return &ConfigTokenManager{
		oauth2Manager:   oauth2Manager,
		configPersister: persister,
		instance:        instance,
		logger:          masto.LoggerOrNop(logger),
		lastSeen:        initialToken,
	}
}

// GetToken returns a valid access token, persisting it when it changed.
func (m *ConfigTokenManager) GetToken(ctx context.Context) (string, error) {
	token, err := m.oauth2Manager.GetToken(ctx)
	if err != nil {
		return "", err
	}

	m.persistIfChanged()

	return token, nil
}

// RefreshToken forces a refresh and persists the result.
func (m *ConfigTokenManager) RefreshToken(ctx context.Context) error {
	err := m.oauth2Manager.RefreshToken(ctx)
	if err != nil {
		return err
	}

	m.persistIfChanged()

	return nil
}

// TokenExpiry returns the current token's expiry, zero when it never expires.
func (m *ConfigTokenManager) TokenExpiry() time.Time {
	token := m.oauth2Manager.Current()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

func (m *ConfigTokenManager) persistIfChanged() {
	current := m.oauth2Manager.Current()
	if current == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if current.AccessToken == m.lastSeen {
		return
	}

	err := m.persist(current)
	if err != nil {
		m.logger.Warn("failed to persist refreshed token", map[string]interface{}{
			"instance": m.instance,
			"error":    err.Error(),
		})

		return
	}

	m.lastSeen = current.AccessToken
}

func (m *ConfigTokenManager) persist(token *Token) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.UpdateInstanceToken(m.instance, token.AccessToken, token.ExpiresAt, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to update instance token: %w", err)
	}

	return nil
}
