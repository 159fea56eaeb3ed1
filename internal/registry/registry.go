// Package registry holds the static source table and the driver contract
// every ingestion source implements against it.
package registry

import (
	"context"
	"sort"
	"sync"

	"geneingest/internal/payload"
	"geneingest/pkg/apperror"
	"geneingest/pkg/config"
)

// Gene is the minimal identity a driver needs to fetch one gene's data.
// Source drivers never see the full evidence.Gene record, only enough to
// address the upstream API or bulk index.
type Gene struct {
	Symbol string
	HGNCID string
}

// PrepareReport summarizes a driver's one-time warm-up.
type PrepareReport struct {
	ItemsLoaded int
	Notes       string
}

// BatchReport summarizes a FetchBatch run over a set of genes.
type BatchReport struct {
	Fetched int
	Failed  int
	Skipped int
}

// Sink receives one result as FetchBatch produces it, in arrival order.
type Sink func(gene Gene, value payload.Value, err error)

// Driver is the contract every source implementation satisfies. Adding a
// new source requires a config.SourceConfig entry plus one Driver
// implementation registered with RegisterDriver — no orchestrator changes.
type Driver interface {
	// Name must equal the config.SourceConfig.Name this driver was built for.
	Name() string

	// Prepare loads bulk data or warms caches. Optional: drivers with no
	// setup may return a zero PrepareReport and a nil error. Idempotent.
	Prepare(ctx context.Context) (PrepareReport, error)

	// FetchOne fetches one gene's payload. Safe for concurrent invocation.
	FetchOne(ctx context.Context, gene Gene) (payload.Value, error)

	// FetchBatch is the preferred path for bulk-capable drivers: it pushes
	// results to sink as they arrive rather than buffering them all.
	FetchBatch(ctx context.Context, genes []Gene, sink Sink) (BatchReport, error)

	// IsValid guards the cache and merger against empty/error responses.
	IsValid(value payload.Value) bool
}

// HealthChecker is optionally implemented by a driver to report its own
// health. Nothing in this module calls it; the metrics listener's /health
// endpoint answers OK without consulting drivers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry holds the source config table and the driver instances attached
// to it. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]config.SourceConfig
	drivers map[string]Driver
}

// New builds a Registry from a source config table, typically
// config.SourcesConfig.Entries or config.DefaultSourceRegistry().
func New(sources []config.SourceConfig) *Registry {
	r := &Registry{
		sources: make(map[string]config.SourceConfig, len(sources)),
		drivers: make(map[string]Driver, len(sources)),
	}
	for _, s := range sources {
		if _, dup := r.sources[s.Name]; dup {
			continue
		}
		r.sources[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r
}

// RegisterDriver attaches a driver to its matching config entry. Returns
// an apperror with CodeNotFound if no config entry declares this driver's
// name.
func (r *Registry) RegisterDriver(d Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := d.Name()
	if _, ok := r.sources[name]; !ok {
		return apperror.New(apperror.CodeNotFound, "no config entry for source").WithDetails("source", name)
	}
	r.drivers[name] = d
	return nil
}

// Source returns the config entry for name.
func (r *Registry) Source(name string) (config.SourceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Driver returns the registered driver for name, or an apperror with
// CodeNotFound if none is registered.
func (r *Registry) Driver(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, "source not found in registry").WithDetails("source", name)
	}
	return d, nil
}

// Names returns every configured source name in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Active returns names of sources that are not retired and have a
// registered driver, in declaration order.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		s := r.sources[name]
		if s.Retired {
			continue
		}
		if _, ok := r.drivers[name]; !ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ActiveScored returns active source names whose config.ScoringTrack is set,
// i.e. the denominator set the Scoring Engine calls total_active_sources.
func (r *Registry) ActiveScored() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		s := r.sources[name]
		if s.Retired || s.Track == config.TrackNone {
			continue
		}
		if _, ok := r.drivers[name]; !ok {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ByCategory filters active sources by config.SourceCategory, sorted by name
// for deterministic iteration (declaration order ties sources to driver
// registration timing, which callers should not depend on here).
func (r *Registry) ByCategory(cat config.SourceCategory) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, s := range r.sources {
		if s.Category != cat || s.Retired {
			continue
		}
		if _, ok := r.drivers[name]; !ok {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
