// Package factmap reconciles catalog records against external sources.
//
// A Factmap wires a record store, an ordered registry of sources, the
// creation policy and the anomaly sinks into a convergence orchestrator:
//
//	fm, err := factmap.New(
//	    factmap.WithStorePath("records.db"),
//	    factmap.WithHTTPSources(factmap.SourceConfig{
//	        Descriptor: sources.Descriptor{SourceID: "mal"},
//	        Endpoint:   "https://api.example.org/mal/{id}",
//	    }),
//	    factmap.WithRestricted(true),
//	)
//	if err != nil {
//	    return err
//	}
//	defer fm.Close()
//
//	result, err := fm.Reconcile(ctx, "Q1")
package factmap

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/agentstation/factmap/internal/sources/builtin"
	"github.com/agentstation/factmap/internal/sources/httpsource"
	"github.com/agentstation/factmap/internal/store/sqlite"
	"github.com/agentstation/factmap/internal/transport"
	"github.com/agentstation/factmap/pkg/anomaly"
	"github.com/agentstation/factmap/pkg/authority"
	"github.com/agentstation/factmap/pkg/constants"
	"github.com/agentstation/factmap/pkg/errors"
	"github.com/agentstation/factmap/pkg/logging"
	"github.com/agentstation/factmap/pkg/normalize"
	"github.com/agentstation/factmap/pkg/sources"
	"github.com/agentstation/factmap/pkg/store"
	factsync "github.com/agentstation/factmap/pkg/sync"
)

// Result is the outcome of reconciling one record.
type Result = factsync.Result

// Factmap reconciles records and notifies hooks of the outcome.
type Factmap interface {
	// Reconcile drives one record to a fixed point
	Reconcile(ctx context.Context, recordID string) (*factsync.Result, error)

	// ReconcileAll reconciles records one at a time, in order
	ReconcileAll(ctx context.Context, recordIDs []string) ([]*factsync.Result, error)

	// ReconcileStored reconciles every record the store lists
	ReconcileStored(ctx context.Context) ([]*factsync.Result, error)

	// Sources returns the registered sources in reconciliation order
	Sources() []sources.Source

	// Store returns the record store
	Store() store.Store

	// OnReconciled registers a callback for finished runs
	OnReconciled(ReconciledHook)

	// OnAborted registers a callback for aborted runs
	OnAborted(AbortedHook)

	// Close releases a store opened by the instance
	Close() error
}

// factmap is the internal implementation of the Factmap interface
type factmap struct {
	config       *config
	store        store.Store
	closer       io.Closer
	registry     *sources.Registry
	orchestrator *factsync.Orchestrator
	hooks        *hooks
}

// New creates a Factmap with the given options.
func New(opts ...Option) (Factmap, error) {
	cfg := defaultConfig()
	if err := cfg.apply(opts...); err != nil {
		return nil, errors.WrapResource("apply", "options", "", err)
	}

	fm := &factmap{config: cfg, hooks: newHooks()}
	if err := fm.openStore(); err != nil {
		return nil, err
	}

	orchestrator, err := fm.build()
	if err != nil {
		_ = fm.Close()
		return nil, err
	}
	fm.orchestrator = orchestrator
	return fm, nil
}

func (f *factmap) openStore() error {
	switch {
	case f.config.store != nil:
		f.store = f.config.store
	case f.config.storePath != "":
		db, err := sqlite.Open(f.config.storePath)
		if err != nil {
			return err
		}
		f.store, f.closer = db, db
	default:
		f.store = store.NewMemory()
	}
	return nil
}

func (f *factmap) build() (*factsync.Orchestrator, error) {
	cfg := f.config

	srcs, err := f.buildSources()
	if err != nil {
		return nil, err
	}
	registry, err := sources.NewRegistry(srcs...)
	if err != nil {
		return nil, err
	}
	if registry.Len() == 0 {
		return nil, errors.NewConfigError("sources", "no sources configured", nil)
	}
	f.registry = registry

	tables := cfg.tables
	if cfg.tablesPath != "" {
		if tables, err = normalize.LoadTables(cfg.tablesPath); err != nil {
			return nil, err
		}
	}
	var normOpts []normalize.Option
	if tables != nil {
		normOpts = append(normOpts, normalize.WithTables(tables))
	}

	opts := []factsync.Option{
		factsync.WithSeedSource(cfg.seed),
		factsync.WithMaxPasses(cfg.maxPasses),
		factsync.WithRetry(cfg.retryAttempts, cfg.retryBackoff),
		factsync.WithAuthority(f.policy()),
		factsync.WithAnomalySink(f.sink()),
		factsync.WithNormalizer(normalize.New(normOpts...)),
		factsync.WithProvenance(cfg.provenance),
	}
	if cfg.metrics != nil {
		opts = append(opts, factsync.WithMetrics(cfg.metrics))
	}
	return factsync.New(registry, f.store, opts...)
}

// buildSources resolves HTTP source configs against the built-in
// descriptors. All HTTP sources share one per-host limiter and one
// response cache.
func (f *factmap) buildSources() ([]sources.Source, error) {
	srcs := append([]sources.Source(nil), f.config.sources...)
	if len(f.config.sourceConfigs) == 0 {
		return srcs, nil
	}

	limiter := transport.NewLimiter(constants.DefaultRequestsPerSecond, constants.DefaultBurst)
	cache := transport.NewCache(constants.ResponseCacheTTL, constants.ResponseCacheCleanup)

	for _, sc := range f.config.sourceConfigs {
		d, err := builtin.Resolve(sc.Descriptor)
		if err != nil {
			return nil, err
		}
		if sc.RequestsPerSecond > 0 {
			if host := endpointHost(sc.Endpoint); host != "" {
				limiter.SetHostRate(host, sc.RequestsPerSecond, 0)
			}
		}
		client := transport.New(d.SourceID,
			transport.WithLimiter(limiter),
			transport.WithCache(cache),
			transport.WithAuth(transport.ParseAuth(sc.Auth), sc.APIKey),
			transport.WithUserAgent(f.config.userAgent),
		)
		src, err := httpsource.New(d, sc.Endpoint, client)
		if err != nil {
			return nil, err
		}
		srcs = append(srcs, src)
	}
	return srcs, nil
}

func (f *factmap) policy() authority.Authority {
	cfg := f.config
	if cfg.authority != nil {
		return cfg.authority
	}
	opts := []authority.Option{
		authority.WithRestricted(cfg.restricted),
		authority.WithAllowed(cfg.allowed...),
	}
	ids := make([]string, 0, len(cfg.sourceAllowed))
	for id := range cfg.sourceAllowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		opts = append(opts, authority.WithSourceAllowed(id, cfg.sourceAllowed[id]...))
	}
	return authority.New(opts...)
}

// sink fans reports out to the log, the configured sinks and the anomaly file.
func (f *factmap) sink() anomaly.Sink {
	sinks := anomaly.Multi{anomaly.NewLog()}
	sinks = append(sinks, f.config.sinks...)
	if f.config.anomalyFile != "" {
		sinks = append(sinks, anomaly.NewFile(f.config.anomalyFile))
	}
	return sinks
}

// Reconcile drives one record to a fixed point.
func (f *factmap) Reconcile(ctx context.Context, recordID string) (*factsync.Result, error) {
	result, err := f.orchestrator.Run(ctx, recordID)
	if err != nil {
		f.hooks.triggerAborted(recordID, err)
		return result, err
	}
	f.hooks.triggerReconciled(result)
	return result, nil
}

// ReconcileAll reconciles records in order. A record that aborts does not
// stop the batch; cancellation does.
func (f *factmap) ReconcileAll(ctx context.Context, recordIDs []string) ([]*factsync.Result, error) {
	logger := logging.FromContext(ctx)
	results := make([]*factsync.Result, 0, len(recordIDs))
	var errs []error
	for i, id := range recordIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		result, err := f.Reconcile(ctx, id)
		if result != nil {
			results = append(results, result)
		}
		if err != nil {
			errs = append(errs, errors.WrapResource("reconcile", "record", id, err))
		}
		logger.Debug().Int("done", i+1).Int("total", len(recordIDs)).Str("record", id).Msg("Record processed")
	}
	return results, errors.Join(errs...)
}

// ReconcileStored reconciles every record the store lists.
func (f *factmap) ReconcileStored(ctx context.Context) ([]*factsync.Result, error) {
	lister, ok := f.store.(store.Lister)
	if !ok {
		return nil, errors.NewConfigError("store", "store cannot list records", nil)
	}
	ids, err := lister.List(ctx)
	if err != nil {
		return nil, err
	}
	return f.ReconcileAll(ctx, ids)
}

// Sources returns the registered sources in reconciliation order.
func (f *factmap) Sources() []sources.Source {
	return f.registry.List()
}

// Store returns the record store.
func (f *factmap) Store() store.Store {
	return f.store
}

// OnReconciled registers a callback for finished runs.
func (f *factmap) OnReconciled(fn ReconciledHook) {
	f.hooks.OnReconciled(fn)
}

// OnAborted registers a callback for aborted runs.
func (f *factmap) OnAborted(fn AbortedHook) {
	f.hooks.OnAborted(fn)
}

// Close releases a store opened by the instance.
func (f *factmap) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(strings.ReplaceAll(endpoint, "{id}", "x"))
	if err != nil {
		return ""
	}
	return u.Host
}
