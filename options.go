package factmap

import (
	"time"

	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/authority"
	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/sources"
	"github.com/agentstation/factmap/pkg/store"
	factsync "github.com/agentstation/factmap/pkg/sync"
)

// SourceConfig describes an HTTP source. Descriptor fields left empty are
// completed from the built-in descriptor with the same id.
type SourceConfig struct {
	sources.Descriptor

	// Endpoint is the payload URL template, e.g. "https://api.example.org/manga/{id}".
	Endpoint string

	// Auth is "bearer", "header:<name>", "query:<param>" or empty.
	Auth   string
	APIKey string

	// RequestsPerSecond overrides the default per-host rate when positive.
	RequestsPerSecond float64
}

// config holds the configuration of a Factmap instance.
type config struct {
	storePath string
	store     store.Store

	sources       []sources.Source
	sourceConfigs []SourceConfig
	seed          string

	authority     authority.Authority
	restricted    bool
	allowed       []string
	sourceAllowed map[string][]string

	sinks       []anomaly.Sink
	anomalyFile string

	tables     *normalize.Tables
	tablesPath string

	metrics       factsync.Metrics
	maxPasses     int
	retryAttempts int
	retryBackoff  time.Duration
	provenance    bool
	userAgent     string
}

func defaultConfig() *config {
	return &config{
		sourceAllowed: make(map[string][]string),
		maxPasses:     constants.MaxPasses,
		retryAttempts: constants.MaxRetries,
		retryBackoff:  constants.RetryBackoff,
		userAgent:     constants.AppName,
	}
}

// Option is a function that configures a Factmap instance.
type Option func(*config) error

func (c *config) apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// WithStore uses an existing record store. The caller keeps ownership.
func WithStore(s store.Store) Option {
	return func(c *config) error {
		if s == nil {
			return errors.NewValidationError("store", nil, "cannot be nil")
		}
		c.store = s
		return nil
	}
}

// WithStorePath opens a SQLite store at path. ":memory:" is accepted.
func WithStorePath(path string) Option {
	return func(c *config) error {
		c.storePath = path
		return nil
	}
}

// WithSources registers sources in reconciliation order.
func WithSources(srcs ...sources.Source) Option {
	return func(c *config) error {
		c.sources = append(c.sources, srcs...)
		return nil
	}
}

// WithHTTPSources registers HTTP sources after any sources added with WithSources.
func WithHTTPSources(cfgs ...SourceConfig) Option {
	return func(c *config) error {
		for _, sc := range cfgs {
			if sc.Endpoint == "" {
				return errors.NewValidationError("endpoint", sc.SourceID, "http source needs an endpoint")
			}
		}
		c.sourceConfigs = append(c.sourceConfigs, cfgs...)
		return nil
	}
}

// WithSeedSource names the source that introduced the record.
func WithSeedSource(id string) Option {
	return func(c *config) error {
		c.seed = id
		return nil
	}
}

// WithAuthority sets the creation policy, replacing WithRestricted and WithAllowed.
func WithAuthority(a authority.Authority) Option {
	return func(c *config) error {
		c.authority = a
		return nil
	}
}

// WithRestricted enables or disables restricted creation.
func WithRestricted(restricted bool) Option {
	return func(c *config) error {
		c.restricted = restricted
		return nil
	}
}

// WithAllowed adds property patterns any source may create in restricted mode.
func WithAllowed(patterns ...string) Option {
	return func(c *config) error {
		c.allowed = append(c.allowed, patterns...)
		return nil
	}
}

// WithSourceAllowed adds property patterns one source may create in restricted mode.
func WithSourceAllowed(source string, patterns ...string) Option {
	return func(c *config) error {
		c.sourceAllowed[source] = append(c.sourceAllowed[source], patterns...)
		return nil
	}
}

// WithAnomalySink adds a sink for anomaly reports.
func WithAnomalySink(s anomaly.Sink) Option {
	return func(c *config) error {
		if s == nil {
			return errors.NewValidationError("anomaly_sink", nil, "cannot be nil")
		}
		c.sinks = append(c.sinks, s)
		return nil
	}
}

// WithAnomalyFile appends anomaly reports to a YAML file.
func WithAnomalyFile(path string) Option {
	return func(c *config) error {
		c.anomalyFile = path
		return nil
	}
}

// WithTables sets the normalizer tables.
func WithTables(t *normalize.Tables) Option {
	return func(c *config) error {
		c.tables = t
		return nil
	}
}

// WithTablesFile loads the normalizer tables from a YAML file.
func WithTablesFile(path string) Option {
	return func(c *config) error {
		c.tablesPath = path
		return nil
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m factsync.Metrics) Option {
	return func(c *config) error {
		c.metrics = m
		return nil
	}
}

// WithMaxPasses bounds the passes of one record.
func WithMaxPasses(n int) Option {
	return func(c *config) error {
		if n < 1 {
			return errors.NewValidationError("max_passes", n, "must be at least 1")
		}
		c.maxPasses = n
		return nil
	}
}

// WithRetry configures retries of transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *config) error {
		if attempts < 1 {
			return errors.NewValidationError("retry_attempts", attempts, "must be at least 1")
		}
		if backoff < 0 {
			return errors.NewValidationError("retry_backoff", backoff, "cannot be negative")
		}
		c.retryAttempts = attempts
		c.retryBackoff = backoff
		return nil
	}
}

// WithProvenance records which source added each statement, qualifier and reference.
func WithProvenance(enabled bool) Option {
	return func(c *config) error {
		c.provenance = enabled
		return nil
	}
}

// WithUserAgent sets the user agent of HTTP sources.
func WithUserAgent(agent string) Option {
	return func(c *config) error {
		if agent != "" {
			c.userAgent = agent
		}
		return nil
	}
}
