package sync

import (
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/authority"
	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/normalize"
)

// options controls an Orchestrator.
type options struct {
	seed          string
	maxPasses     int
	retryAttempts int
	retryBackoff  time.Duration
	authority     authority.Authority
	sink          anomaly.Sink
	normalizer    *normalize.Normalizer
	metrics       Metrics
	provenance    bool
	now           func() utc.Time
	sleep         func(time.Duration) <-chan time.Time
}

func defaultOptions() *options {
	return &options{
		maxPasses:     constants.MaxPasses,
		retryAttempts: constants.MaxRetries,
		retryBackoff:  constants.RetryBackoff,
		authority:     authority.Unrestricted(),
		sink:          anomaly.NewLog(),
		normalizer:    normalize.New(),
		metrics:       noopMetrics{},
		provenance:    true,
		now:           utc.Now,
		sleep:         time.After,
	}
}

// Option is a function that configures an Orchestrator.
type Option func(*options) error

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithSeedSource names the source whose changes alone never trigger
// another pass.
func WithSeedSource(id string) Option {
	return func(o *options) error {
		o.seed = id
		return nil
	}
}

// WithMaxPasses bounds the number of passes over the sources.
func WithMaxPasses(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("max_passes", n, "must be at least 1")
		}
		o.maxPasses = n
		return nil
	}
}

// WithRetry sets how often a transient failure is attempted and the fixed
// delay between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(o *options) error {
		if attempts < 1 {
			return errors.NewValidationError("retry_attempts", attempts, "must be at least 1")
		}
		if backoff < 0 {
			return errors.NewValidationError("retry_backoff", backoff, "must be non-negative")
		}
		o.retryAttempts = attempts
		o.retryBackoff = backoff
		return nil
	}
}

// WithAuthority sets the creation policy.
func WithAuthority(a authority.Authority) Option {
	return func(o *options) error {
		if a == nil {
			return errors.NewValidationError("authority", nil, "cannot be nil")
		}
		o.authority = a
		return nil
	}
}

// WithAnomalySink sets where anomaly reports go.
func WithAnomalySink(s anomaly.Sink) Option {
	return func(o *options) error {
		if s == nil {
			return errors.NewValidationError("anomaly_sink", nil, "cannot be nil")
		}
		o.sink = s
		return nil
	}
}

// WithNormalizer sets the payload normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *options) error {
		if n == nil {
			return errors.NewValidationError("normalizer", nil, "cannot be nil")
		}
		o.normalizer = n
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(o *options) error {
		if m == nil {
			return errors.NewValidationError("metrics", nil, "cannot be nil")
		}
		o.metrics = m
		return nil
	}
}

// WithProvenance enables or disables mutation tracking in results.
func WithProvenance(enabled bool) Option {
	return func(o *options) error {
		o.provenance = enabled
		return nil
	}
}

// WithClock sets the clock used for reference retrieval dates.
func WithClock(now func() utc.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.NewValidationError("clock", nil, "cannot be nil")
		}
		o.now = now
		return nil
	}
}
