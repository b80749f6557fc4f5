package reconciler

import (
	"github.com/agentstation/utc"
	"github.com/google/uuid"

	"github.com/agentstation/factmap/pkg/authority"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/provenance"
)

// Options configures a merger.
type options struct {
	authority authority.Authority
	tracker   provenance.Tracker
	now       func() utc.Time
	newID     func() string
}

func defaultOptions() *options {
	return &options{
		authority: authority.Unrestricted(),
		tracker:   provenance.NewTracker(true),
		now:       utc.Now,
		newID:     uuid.NewString,
	}
}

// Option is a function that configures a Merger.
type Option func(*options) error

func (options *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	return options, nil
}

// newOptions returns merger options with default values.
func newOptions(opts ...Option) (*options, error) {
	return defaultOptions().apply(opts...)
}

// WithAuthority sets the creation policy.
func WithAuthority(a authority.Authority) Option {
	return func(o *options) error {
		if a == nil {
			return &errors.ValidationError{
				Field:   "authority",
				Message: "cannot be nil",
			}
		}
		o.authority = a
		return nil
	}
}

// WithProvenance enables or disables mutation tracking.
func WithProvenance(enabled bool) Option {
	return func(o *options) error {
		o.tracker = provenance.NewTracker(enabled)
		return nil
	}
}

// WithTracker shares a provenance tracker with the merger.
func WithTracker(t provenance.Tracker) Option {
	return func(o *options) error {
		if t == nil {
			return &errors.ValidationError{
				Field:   "tracker",
				Message: "cannot be nil",
			}
		}
		o.tracker = t
		return nil
	}
}

// WithClock sets the clock used for reference retrieval dates.
func WithClock(now func() utc.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{
				Field:   "clock",
				Message: "cannot be nil",
			}
		}
		o.now = now
		return nil
	}
}

// WithIDGenerator sets the generator of new statement ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) error {
		if fn == nil {
			return &errors.ValidationError{
				Field:   "id_generator",
				Message: "cannot be nil",
			}
		}
		o.newID = fn
		return nil
	}
}
