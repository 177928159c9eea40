package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as instance negotiation.
	ShortHTTPTimeout = 10 * time.Second

	// StreamHandshakeTimeout bounds the WebSocket/SSE handshake.
	StreamHandshakeTimeout = 15 * time.Second
)

// HTTP retry defaults. Retries are off unless RetryMax is configured.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 0

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 30 * time.Second
)

// Streaming reconnect defaults.
const (
	// DefaultStreamBackoffInitial is the first reconnect delay.
	DefaultStreamBackoffInitial = 1 * time.Second

	// DefaultStreamBackoffMax caps the reconnect delay.
	DefaultStreamBackoffMax = 30 * time.Second

	// StreamPingInterval is how often WebSocket pings are sent.
	StreamPingInterval = 30 * time.Second

	// StreamWriteTimeout bounds a single control frame write.
	StreamWriteTimeout = 10 * time.Second
)

// Pagination and display limits.
const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 20

	// MaxPageSize is the largest page most endpoints accept.
	MaxPageSize = 40

	// DemoDisplayLimit limits items shown in examples.
	DemoDisplayLimit = 5

	// StringTruncationLimit is the width status content is cut to in tables.
	StringTruncationLimit = 60
)

// Cache defaults.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the default cache time-to-live.
	DefaultCacheTTL = 5 * time.Minute

	// ServerInfoCacheTTL is how long negotiated server info stays cached.
	ServerInfoCacheTTL = 1 * time.Hour

	// CacheCleanupInterval is how often expired memory entries are swept.
	CacheCleanupInterval = 1 * time.Minute

	// DefaultNATSBucket is the KV bucket used by the NATS cache.
	DefaultNATSBucket = "masto-cache"

	// NATSConnectTimeout bounds the initial NATS dial.
	NATSConnectTimeout = 5 * time.Second

	// MetricsReadHeaderTimeout bounds header reads on the metrics endpoint.
	MetricsReadHeaderTimeout = 5 * time.Second
)

// Version gates for optional API surface.
const (
	// MediaV2Since is the first version with /api/v2/media.
	MediaV2Since = "3.1.3"

	// AccountLookupSince is the first version with /api/v1/accounts/lookup.
	AccountLookupSince = "3.4.0"

	// FollowedTagsSince is the first version with followed hashtags.
	FollowedTagsSince = "4.0.0"

	// DomainAllowsSince is the first version with the admin domain allow API.
	DomainAllowsSince = "4.0.0"

	// InstanceV2Since is the first version with /api/v2/instance.
	InstanceV2Since = "4.0.0"
)

// UI and display constants.
const (
	// CheckMarkSymbol is used to indicate current/active items.
	CheckMarkSymbol = "✓"

	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// None is used when no value is present.
	None = "none"

	// MaskedSecret is used to hide sensitive information.
	MaskedSecret = "***"
)

// Format constants.
const (
	// FormatTable for table output format.
	FormatTable = "table"

	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"
)

// Software names reported by instances.
const (
	SoftwareMastodon = "mastodon"
	SoftwarePleroma  = "pleroma"
)
