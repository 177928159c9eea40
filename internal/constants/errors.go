package constants

import "errors"

// Configuration errors.
var (
	ErrNoInstanceConfigured = errors.New("no instance configured, use 'masto login --url <instance>' first")
	ErrNoTokenConfigured    = errors.New("no access token configured, use 'masto login' to add one")
	ErrEmptyToken           = errors.New("access token must not be empty")
	ErrUnknownConfigKey     = errors.New("unknown configuration key")
)

// Command argument errors.
var (
	ErrStatusTextRequired = errors.New("status text is required")
	ErrDomainRequired     = errors.New("domain is required")
	ErrUnknownTimeline    = errors.New("unknown timeline, expected home, public or tag")
	ErrUnknownChannel     = errors.New("unknown stream channel")
	ErrUnknownFormat      = errors.New("unknown output format")
)

// Relay errors.
var (
	ErrRelayClosed          = errors.New("relay closed")
	ErrSubjectPrefixMissing = errors.New("relay subject prefix is required")
)

// File system errors.
var (
	ErrNotRegularFile             = errors.New("path is not a regular file")
	ErrDirectoryTraversalDetected = errors.New("directory traversal detected in file path")
)
