// Package sync drives a record to a fixed point across all sources.
//
// A run makes passes over the registry in order. In each pass every source
// whose identifier property is present on the record fetches, normalizes and
// merges its facts for each identifier. When a source other than the seed
// changed the record the record is reloaded and another pass starts, so facts
// that reveal new identifiers for other sources are followed up. The loop ends
// when a pass changes nothing (done), the store reports no progress despite
// reported changes (stalled), or the pass limit is hit (exhausted). A
// structural rejection from the store aborts the run.
package sync

import (
	"context"
	"time"

	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/facts"
	"github.com/agentstation/factmap/pkg/linkage"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/provenance"
	"github.com/agentstation/factmap/pkg/reconciler"
	"github.com/agentstation/factmap/pkg/records"
	"github.com/agentstation/factmap/pkg/sources"
	"github.com/agentstation/factmap/pkg/store"
)

// Orchestrator reconciles records against a registry of sources.
type Orchestrator struct {
	registry *sources.Registry
	store    store.Store
	opts     *options
}

// New creates an orchestrator.
func New(registry *sources.Registry, st store.Store, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.NewValidationError("registry", nil, "cannot be nil")
	}
	if st == nil {
		return nil, errors.NewValidationError("store", nil, "cannot be nil")
	}
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	if o.seed != "" {
		if _, ok := registry.Get(o.seed); !ok {
			return nil, errors.NewValidationError("seed_source", o.seed, "not in registry")
		}
	}
	return &Orchestrator{registry: registry, store: st, opts: o}, nil
}

// run holds the collaborators of a single Run.
type run struct {
	*Orchestrator
	merger   *reconciler.Merger
	resolver *linkage.Resolver
	tracker  provenance.Tracker
	counter  *anomaly.Counter
}

// Run reconciles one record until it converges. The returned error is
// non-nil only when the run aborted.
func (o *Orchestrator) Run(ctx context.Context, recordID string) (*Result, error) {
	ctx = logging.WithRecord(ctx, recordID)
	logger := logging.FromContext(ctx)
	result := NewResult(recordID)

	r := &run{
		Orchestrator: o,
		tracker:      provenance.NewTracker(o.opts.provenance),
		counter:      anomaly.NewCounter(o.opts.sink),
	}
	merger, err := reconciler.New(o.store,
		reconciler.WithAuthority(o.opts.authority),
		reconciler.WithTracker(r.tracker),
		reconciler.WithClock(o.opts.now),
	)
	if err != nil {
		return o.abort(ctx, result, r, err)
	}
	r.merger = merger
	r.resolver = linkage.New(o.store, r.counter)

	rec, err := o.store.Load(ctx, recordID)
	if err != nil {
		return o.abort(ctx, result, r, err)
	}

	state := StateExhausted
	for n := 1; n <= o.opts.maxPasses; n++ {
		before := rec.Revision
		pass, err := r.pass(ctx, rec, n)
		result.Passes = append(result.Passes, pass)
		if err != nil {
			return o.abort(ctx, result, r, err)
		}
		if !pass.Changed {
			state = StateDone
			break
		}

		reloaded, err := o.store.Load(ctx, recordID)
		if err != nil {
			return o.abort(ctx, result, r, err)
		}
		if reloaded.Revision == before {
			logger.Warn().Int64("revision", before).Msg("Record reported changes but revision did not advance")
			state = StateStalled
			break
		}
		rec = reloaded
	}

	r.finish(ctx, result, state)
	logger.Info().
		Str("state", string(result.State)).
		Int("passes", len(result.Passes)).
		Str("changes", result.Totals.String()).
		Msg("Reconciliation finished")
	return result, nil
}

// RunAll reconciles each record in turn. A failed record does not stop the
// batch; the errors are joined.
func (o *Orchestrator) RunAll(ctx context.Context, recordIDs []string) ([]*Result, error) {
	results := make([]*Result, 0, len(recordIDs))
	var errs []error
	for _, id := range recordIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := o.Run(ctx, id)
		results = append(results, res)
		if err != nil {
			errs = append(errs, errors.WrapResource("reconcile", "record", id, err))
		}
	}
	return results, errors.Join(errs...)
}

func (o *Orchestrator) abort(ctx context.Context, result *Result, r *run, err error) (*Result, error) {
	result.Err = err
	r.finish(ctx, result, StateAborted)
	logging.FromContext(ctx).Error().Err(err).Int("passes", len(result.Passes)).Msg("Reconciliation aborted")
	return result, err
}

func (r *run) finish(ctx context.Context, result *Result, state State) {
	result.Finalize(state)
	result.Anomalies = r.counter.Count()
	result.Provenance = r.tracker.Map()
	r.opts.metrics.RecordRun(ctx, string(state), len(result.Passes), result.Duration.Milliseconds())
}

// pass runs every applicable source once over rec.
func (r *run) pass(ctx context.Context, rec *records.Record, n int) (*PassResult, error) {
	pass := &PassResult{Number: n}
	logger := logging.FromContext(ctx)
	logger.Debug().Int("pass", n).Int64("revision", rec.Revision).Msg("Starting pass")

	for _, src := range r.registry.List() {
		ids := identifiers(rec, src.Property())
		if len(ids) == 0 {
			continue
		}
		sr, err := r.source(logging.WithSource(ctx, src.ID()), rec, src, ids)
		pass.Sources = append(pass.Sources, sr)
		r.opts.metrics.RecordMerge(ctx, src.ID(), sr.Result)
		if err != nil {
			return pass, err
		}
		if sr.Result.Changed() && src.ID() != r.opts.seed {
			pass.Changed = true
		}
	}
	return pass, nil
}

// source processes every identifier of one source. Only structural errors
// and cancellation are returned; other failures stay in the source result.
func (r *run) source(ctx context.Context, rec *records.Record, src sources.Source, ids []string) (*SourceResult, error) {
	sr := &SourceResult{Source: src.ID()}
	logger := logging.FromContext(ctx)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sr, err
		}
		sr.Identifiers++

		res, deprecated, err := r.identifier(logging.WithIdentifier(ctx, id), rec, src, id)
		sr.Result.Add(res)
		if deprecated {
			sr.Deprecated++
		}
		if err == nil {
			continue
		}

		switch {
		case errors.IsStructural(err), ctx.Err() != nil:
			return sr, err
		case errors.IsTransient(err):
			logger.Warn().Err(err).Str("identifier", id).Msg("Giving up on source for this pass")
			r.opts.metrics.RecordError(ctx, src.ID(), "transient")
			sr.Errors = append(sr.Errors, err)
			return sr, nil
		default:
			logger.Warn().Err(err).Str("identifier", id).Msg("Skipping identifier")
			r.opts.metrics.RecordError(ctx, src.ID(), "other")
			sr.Errors = append(sr.Errors, err)
		}
	}
	return sr, nil
}

// identifier fetches and merges one identifier, retrying transient
// failures. A failed commit may still have landed, so rec is reloaded
// before every retry and the merge only applies what is still missing.
func (r *run) identifier(ctx context.Context, rec *records.Record, src sources.Source, id string) (reconciler.Result, bool, error) {
	var (
		total      reconciler.Result
		deprecated bool
		attempt    int
	)
	err := r.retry(ctx, func() error {
		attempt++
		if attempt > 1 {
			reloaded, err := r.store.Load(ctx, rec.ID)
			if err != nil {
				return err
			}
			*rec = *reloaded
		}
		res, dep, err := r.apply(ctx, rec, src, id)
		total.Add(res)
		deprecated = deprecated || dep
		return err
	})
	return total, deprecated, err
}

func (r *run) apply(ctx context.Context, rec *records.Record, src sources.Source, id string) (reconciler.Result, bool, error) {
	start := time.Now()
	payload, err := src.Get(ctx, id, rec)
	r.opts.metrics.RecordFetch(ctx, src.ID(), fetchStatus(err), time.Since(start).Milliseconds())

	if errors.IsNotFound(err) {
		logging.FromContext(ctx).Info().Msg("Identifier no longer resolves, deprecating")
		res, err := r.merger.Merge(ctx, rec, src, reconciler.Deprecation(src, id))
		return res, res.RanksModified > 0, err
	}
	if err != nil {
		return reconciler.Result{}, false, err
	}

	set := r.opts.normalizer.Normalize(ctx, src.ID(), payload, facts.Canonical(id))
	linked, err := r.resolver.ResolveSet(ctx, set)
	if err != nil {
		return reconciler.Result{}, false, err
	}
	stmts := append(set.Statements, linked...)

	var total reconciler.Result
	for _, p := range stmts {
		res, err := r.merger.Merge(ctx, rec, src, p)
		total.Add(res)
		if err != nil {
			return total, false, err
		}
	}
	return total, false, nil
}

// retry runs fn until it succeeds, fails permanently, or the attempts are
// used up, sleeping the fixed backoff between attempts.
func (r *run) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.opts.retryAttempts; attempt++ {
		if err = fn(); err == nil || !errors.IsTransient(err) {
			return err
		}
		if attempt == r.opts.retryAttempts {
			break
		}
		logging.FromContext(ctx).Debug().Err(err).Int("attempt", attempt).Msg("Retrying after transient failure")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.opts.sleep(r.opts.retryBackoff):
		}
	}
	return err
}

// identifiers returns the string values of property on rec, deprecated
// ones included, without duplicates.
func identifiers(rec *records.Record, property records.PropertyID) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, s := range rec.Statements[property] {
		if s.Value.Kind != records.KindString || s.Value.String == "" || seen[s.Value.String] {
			continue
		}
		seen[s.Value.String] = true
		ids = append(ids, s.Value.String)
	}
	return ids
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsRateLimited(err):
		return "rate_limited"
	case errors.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
