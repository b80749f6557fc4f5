// Package constants provides shared constants used throughout the factmap codebase.
// This includes timeouts, limits, file permissions, and other configuration values
// that should be consistent across the application.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests to source APIs
	DefaultHTTPTimeout = 30 * time.Second

	// SourceFetchTimeout bounds a single payload fetch, including retries inside transport
	SourceFetchTimeout = 2 * time.Minute

	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 30 * time.Minute

	// RetryBackoff is the fixed delay between attempts of a transient-failing identifier
	RetryBackoff = 2 * time.Second

	// StoreBusyTimeout is how long SQLite waits on a locked database
	StoreBusyTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// MaxRetries is the number of attempts made for an identifier before the source is abandoned for the pass
	MaxRetries = 3

	// MaxPasses bounds the convergence loop of a single record
	MaxPasses = 10

	// DefaultRequestsPerSecond is the per-host request rate of the HTTP transport
	DefaultRequestsPerSecond = 1.0

	// DefaultBurst is the per-host burst size of the HTTP transport
	DefaultBurst = 2

	// MaxResponseBytes caps how much of a source response body is read
	MaxResponseBytes = 8 << 20
)

// Cache constants
const (
	// ResponseCacheTTL is how long a successful source response is reused
	ResponseCacheTTL = 10 * time.Minute

	// ResponseCacheCleanup is the eviction interval of the response cache
	ResponseCacheCleanup = 30 * time.Minute
)

// Application constants
const (
	// AppName is the name used in the user agent and config file lookup
	AppName = "factmap"

	// ConfigFileName is the base name of the optional config file
	ConfigFileName = ".factmap"

	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "FACTMAP"
)
