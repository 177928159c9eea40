package client

import (
	"context"
	"errors"
	"time"

	"github.com/fivetwenty-io/masto/internal/auth"
	"github.com/fivetwenty-io/masto/internal/constants"
	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/internal/stream"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

// Static errors for err113 compliance.
var (
	ErrNoTokenManagerConfigured = errors.New("no token manager configured")
)

// Client implements masto.Client.
type Client struct {
	httpClient   *http.Client
	tokenManager auth.TokenManager
	baseURL      string
	logger       masto.Logger
	server       masto.ServerInfo

	// Resource clients
	statuses         masto.StatusesClient
	accounts         masto.AccountsClient
	timelines        masto.TimelinesClient
	notifications    masto.NotificationsClient
	mediaAttachments masto.MediaAttachmentsClient
	tags             masto.TagsClient
	followedTags     masto.FollowedTagsClient
	instance         masto.InstanceClient
	domainAllows     masto.DomainAllowsClient
	streaming        masto.StreamingClient
}

var _ masto.Client = (*Client)(nil)

// createTokenManager picks the token manager for config.
func createTokenManager(config *masto.Config) auth.TokenManager {
	switch {
	case config.TokenSource != nil:
		return config.TokenSource
	case config.AccessToken != "":
		return auth.NewStaticTokenManager(config.AccessToken)
	case config.ClientID != "" && config.ClientSecret != "":
		return auth.NewInstanceTokenManager(config.URL, config.ClientID, config.ClientSecret, config.Scopes...)
	}

	return nil // No authentication
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *masto.Config) []http.Option {
	var httpOpts []http.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, http.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.Timeout > 0 {
		httpOpts = append(httpOpts, http.WithTimeout(config.Timeout))
	}

	if len(config.DefaultHeaders) > 0 {
		httpOpts = append(httpOpts, http.WithDefaultHeaders(config.DefaultHeaders))
	}

	if config.Interceptors != nil {
		httpOpts = append(httpOpts, http.WithInterceptors(config.Interceptors))
	}

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, http.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// New creates a client for config.URL. Unless config.ServerVersion is set,
// the instance is asked for its version and streaming URL first.
func New(ctx context.Context, config *masto.Config) (*Client, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	tokenManager := createTokenManager(config)
	httpOpts := createHTTPClientOptions(config)

	server, err := negotiate(ctx, config, http.NewClient(config.URL, tokenManager, httpOpts...))
	if err != nil {
		return nil, err
	}

	httpOpts = append(httpOpts, http.WithServerVersion(server.Version))

	client := &Client{
		httpClient:   http.NewClient(config.URL, tokenManager, httpOpts...),
		tokenManager: tokenManager,
		baseURL:      config.URL,
		logger:       masto.LoggerOrNop(config.Logger),
		server:       server,
	}

	client.initializeResourceClients()

	client.streaming, err = newStreaming(config, client.httpClient, server)
	if err != nil {
		return nil, err
	}

	client.logger.Debug("client ready", map[string]interface{}{
		"url":      config.URL,
		"software": server.Software,
		"version":  server.Version,
	})

	return client, nil
}

func newStreaming(config *masto.Config, httpClient *http.Client, server masto.ServerInfo) (masto.StreamingClient, error) {
	if server.StreamingURL == "" {
		return unavailableStreaming{}, nil
	}

	return stream.New(stream.Config{
		StreamingURL:   server.StreamingURL,
		Token:          httpClient.Token,
		Transport:      config.Stream.Transport,
		BackoffInitial: config.Stream.BackoffInitial,
		BackoffMax:     config.Stream.BackoffMax,
		MaxReconnects:  config.Stream.MaxReconnects,
		DedupWindow:    config.Stream.DedupWindow,
		Logger:         config.Logger,
		OnStateChange:  config.Stream.OnStateChange,
		UserAgent:      httpClient.UserAgent(),
	})
}

// Server returns the negotiated server identity.
func (c *Client) Server() masto.ServerInfo {
	return c.server
}

// GetToken returns the current access token from the token manager.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	if c.tokenManager == nil {
		return "", ErrNoTokenManagerConfigured
	}

	return c.httpClient.Token(ctx)
}

// Close releases the streaming connection.
func (c *Client) Close() error {
	return c.streaming.Close()
}

// Resource client accessors

func (c *Client) Statuses() masto.StatusesClient {
	return c.statuses
}

func (c *Client) Accounts() masto.AccountsClient {
	return c.accounts
}

func (c *Client) Timelines() masto.TimelinesClient {
	return c.timelines
}

func (c *Client) Notifications() masto.NotificationsClient {
	return c.notifications
}

func (c *Client) MediaAttachments() masto.MediaAttachmentsClient {
	return c.mediaAttachments
}

func (c *Client) Tags() masto.TagsClient {
	return c.tags
}

func (c *Client) FollowedTags() masto.FollowedTagsClient {
	return c.followedTags
}

func (c *Client) Instance() masto.InstanceClient {
	return c.instance
}

func (c *Client) DomainAllows() masto.DomainAllowsClient {
	return c.domainAllows
}

// Streaming returns the shared event stream subscriber.
func (c *Client) Streaming() masto.StreamingClient {
	return c.streaming
}

// initializeResourceClients initializes all resource-specific clients.
func (c *Client) initializeResourceClients() {
	c.statuses = NewStatusesClient(c.httpClient)
	c.accounts = NewAccountsClient(c.httpClient)
	c.timelines = NewTimelinesClient(c.httpClient)
	c.notifications = NewNotificationsClient(c.httpClient)
	c.mediaAttachments = NewMediaAttachmentsClient(c.httpClient)
	c.tags = NewTagsClient(c.httpClient)
	c.followedTags = NewFollowedTagsClient(c.httpClient)
	c.instance = NewInstanceClient(c.httpClient)
	c.domainAllows = NewDomainAllowsClient(c.httpClient)
}

// unavailableStreaming stands in when the instance advertises no
// streaming endpoint.
type unavailableStreaming struct{}

func (unavailableStreaming) Subscribe(context.Context, masto.Channel, masto.EventHandler) (masto.Subscription, error) {
	return nil, masto.ErrStreamingUnavailable
}

func (unavailableStreaming) State() masto.StreamState {
	return masto.StateIdle
}

func (unavailableStreaming) Close() error {
	return nil
}

// serverInfoTTL returns the cache lifetime for negotiated server info.
func serverInfoTTL(config *masto.Config) time.Duration {
	if config.CacheTTL > 0 {
		return config.CacheTTL
	}

	return constants.ServerInfoCacheTTL
}
