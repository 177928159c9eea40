package masto

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// CoreResourceClients provides access to the everyday resource clients.
type CoreResourceClients interface {
	Statuses() StatusesClient
	Accounts() AccountsClient
	Timelines() TimelinesClient
	Notifications() NotificationsClient
	MediaAttachments() MediaAttachmentsClient
}

// DiscoveryClients provides access to tag and instance clients.
type DiscoveryClients interface {
	Tags() TagsClient
	FollowedTags() FollowedTagsClient
	Instance() InstanceClient
}

// AdminClients provides access to moderation resource clients.
type AdminClients interface {
	DomainAllows() DomainAllowsClient
}

// Client is the full client surface.
type Client interface {
	CoreResourceClients
	DiscoveryClients
	AdminClients

	// Streaming returns the event stream subscriber.
	Streaming() StreamingClient
	// Server returns the negotiated server identity.
	Server() ServerInfo
	// Close releases the streaming connection, if any.
	Close() error
}

// StreamTransport selects the realtime transport.
type StreamTransport string

const (
	StreamTransportAuto      StreamTransport = "auto"
	StreamTransportWebSocket StreamTransport = "websocket"
	StreamTransportSSE       StreamTransport = "sse"
)

// StreamConfig configures the realtime subscriber.
type StreamConfig struct {
	// Transport: websocket, sse or auto (websocket with SSE fallback). Default auto.
	Transport StreamTransport
	// BackoffInitial is the first reconnect delay. Default 1s.
	BackoffInitial time.Duration
	// BackoffMax caps the reconnect delay. Default 30s.
	BackoffMax time.Duration
	// MaxReconnects is the retry budget per outage. 0 means unlimited.
	MaxReconnects int
	// DedupWindow is the number of recent event keys remembered to drop
	// duplicates delivered around a reconnect. 0 disables deduplication.
	DedupWindow int
	// OnStateChange receives connection state transitions, including the
	// "connection degraded" Reconnecting state.
	OnStateChange StateListener
}

// Config represents client configuration for building a Client.
//
// A Config is copied by mastoclient.New and never mutated afterwards; build a
// new client to change any of these values.
//
// # Authentication precedence
//
//  1. TokenSource: caller-managed tokens.
//  2. AccessToken: used directly as a static Bearer token.
//  3. ClientID/ClientSecret: OAuth2 client_credentials grant against
//     <URL>/oauth/token with Scopes.
//  4. No credentials: requests are sent unauthenticated; operations that
//     require a token fail locally with KindUnauthorized.
//
// # Server version
//
// Unless ServerVersion is set, mastoclient.New fetches the instance metadata
// to learn the server version and streaming URL. Set ServerVersion to skip
// that request.
type Config struct {
	// URL: base URL of the instance (e.g. "https://example.social"). Required.
	URL string
	// StreamingURL: base URL of the streaming API. Discovered when empty.
	StreamingURL string

	// TokenSource supplies tokens from the caller, e.g. a refreshing manager.
	TokenSource TokenSource
	// AccessToken: static Bearer token.
	AccessToken string
	// ClientID, ClientSecret and Scopes for the client_credentials grant.
	ClientID     string
	ClientSecret string
	Scopes       []string

	// ServerSoftware: "mastodon", "pleroma", ... Detected when empty.
	ServerSoftware string
	// ServerVersion: explicit Mastodon API version; bypasses negotiation.
	ServerVersion string

	// Timeout applied to every request. Default 30s.
	Timeout time.Duration
	// RetryMax: retries for 5xx, 429 and connection errors. 0 disables retries.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the HTTP retry backoff.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// DefaultHeaders are sent with every request.
	DefaultHeaders map[string]string
	// UserAgent overrides the default User-Agent header.
	UserAgent string

	// Logger: optional structured logger. Debug enables request/response logging.
	Logger Logger
	Debug  bool

	// Interceptors run around every HTTP dispatch.
	Interceptors *InterceptorChain

	// Cache stores negotiated server info across clients. CacheTTL defaults to 1h.
	Cache    Cache
	CacheTTL time.Duration

	// Stream configures the realtime subscriber.
	Stream StreamConfig
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigRequired
	}

	err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required.Error(ErrURLRequired.Error()), is.URL),
		validation.Field(&c.StreamingURL, is.URL),
		validation.Field(&c.ClientSecret, validation.When(c.ClientID != "", validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryMax, validation.Min(0)),
		validation.Field(&c.Stream, validation.By(validateStream)),
	)
	if err != nil {
		return NewValidationError("config", err.Error(), err)
	}

	return nil
}

func validateStream(value interface{}) error {
	sc, _ := value.(StreamConfig)

	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Transport, validation.In(
			StreamTransport(""), StreamTransportAuto, StreamTransportWebSocket, StreamTransportSSE,
		)),
		validation.Field(&sc.MaxReconnects, validation.Min(0)),
		validation.Field(&sc.DedupWindow, validation.Min(0)),
	)
}

// HasCredentials reports whether any authentication is configured.
func (c *Config) HasCredentials() bool {
	return c.TokenSource != nil || c.AccessToken != "" || (c.ClientID != "" && c.ClientSecret != "")
}

// TokenSource supplies bearer tokens to the HTTP engine.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}
