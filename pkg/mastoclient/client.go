// Package mastoclient provides the main entry point for creating Mastodon API clients
package mastoclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/masto/internal/client"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

// New creates a new Mastodon API client. The config is copied, so later
// changes to it do not affect the returned client.
func New(ctx context.Context, config *masto.Config) (masto.Client, error) {
	if config == nil {
		return nil, masto.ErrConfigRequired
	}

	normalized := *config
	normalized.URL = normalizeURL(config.URL)
	normalized.StreamingURL = strings.TrimSuffix(config.StreamingURL, "/")

	c, err := client.New(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// normalizeURL trims trailing slashes and defaults bare hosts to https.
func normalizeURL(raw string) string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "/")
	if raw == "" {
		return ""
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	return raw
}

// NewWithEndpoint creates a new client with just an instance URL (no auth).
func NewWithEndpoint(ctx context.Context, endpoint string) (masto.Client, error) {
	return New(ctx, &masto.Config{
		URL: endpoint,
	})
}

// NewWithToken creates a new client with an instance URL and access token.
func NewWithToken(ctx context.Context, endpoint, token string) (masto.Client, error) {
	return New(ctx, &masto.Config{
		URL:         endpoint,
		AccessToken: token,
	})
}

// NewWithClientCredentials creates a new client using an application's
// client_credentials grant.
func NewWithClientCredentials(ctx context.Context, endpoint, clientID, clientSecret string, scopes ...string) (masto.Client, error) {
	return New(ctx, &masto.Config{
		URL:          endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
	})
}
