//go:generate mockgen -destination=./mocks/registry.go -package=mocks . Loader

// Package registry holds one loaded repository set per distribution and
// refreshes them in the background without blocking queries.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/glorpus-work/querykit/internal/logger"
	"github.com/glorpus-work/querykit/pkg/config"
	"github.com/glorpus-work/querykit/pkg/errors"
	"github.com/glorpus-work/querykit/pkg/metrics"
	"github.com/glorpus-work/querykit/pkg/sack"
	"golang.org/x/sync/errgroup"
)

// Loader builds the index of one distribution.
type Loader interface {
	Load(ctx context.Context, distro config.Distro) (sack.Sack, error)
}

type options struct {
	maxConcurrentLoads int
	loadTimeout        time.Duration
	retryFailed        bool
	metrics            *metrics.Metrics
	onChange           func(ids []string)
}

// Option configures a Registry.
type Option func(*options)

// WithMaxConcurrentLoads bounds how many distributions load at once.
func WithMaxConcurrentLoads(n int) Option {
	return func(o *options) { o.maxConcurrentLoads = n }
}

// WithLoadTimeout bounds a single distribution load. Zero means no limit.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) { o.loadTimeout = d }
}

// WithRetryFailed makes RefreshAll retry distributions whose initial load failed.
func WithRetryFailed(retry bool) Option {
	return func(o *options) { o.retryFailed = retry }
}

// WithMetrics records loads and refreshes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithOnChange registers a callback invoked with the loaded ids whenever the
// set of loaded distributions changes.
func WithOnChange(fn func(ids []string)) Option {
	return func(o *options) { o.onChange = fn }
}

// Registry is the repository registry.
type Registry struct {
	loader Loader
	opts   options

	mu    sync.RWMutex
	order []string
	slots map[string]*slot
}

// New creates an empty registry.
func New(loader Loader, opts ...Option) *Registry {
	o := options{maxConcurrentLoads: config.DefaultMaxConcurrentLoads}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConcurrentLoads <= 0 {
		o.maxConcurrentLoads = 1
	}
	return &Registry{loader: loader, opts: o, slots: map[string]*slot{}}
}

// Initialize loads every distribution independently. A distribution that
// fails to load is dropped (Lookup reports it as not found) and recorded in
// the report. Only when no distribution loads is an error returned.
func (r *Registry) Initialize(ctx context.Context, distros []config.Distro) (*Report, error) {
	r.mu.Lock()
	seen := make(map[string]bool, len(distros))
	for _, d := range distros {
		if _, ok := r.slots[d.ID]; ok || seen[d.ID] {
			r.mu.Unlock()
			return nil, errors.ErrDuplicateDistroWithID(d.ID)
		}
		seen[d.ID] = true
	}
	targets := make([]*slot, 0, len(distros))
	for _, d := range distros {
		s := newSlot(d)
		r.slots[d.ID] = s
		r.order = append(r.order, d.ID)
		targets = append(targets, s)
	}
	r.mu.Unlock()

	report := r.run(ctx, targets)
	for id, err := range report.Failed {
		logger.Error("Failed to load distribution", logger.Fields{"distro": id, "error": err})
	}
	if len(report.Loaded) == 0 {
		if err := report.Err(); err != nil {
			return report, fmt.Errorf("%w: %w", errors.ErrNoDistrosLoaded, err)
		}
		return report, errors.ErrNoDistrosLoaded
	}
	logger.Info("Distributions loaded", logger.Fields{"loaded": report.Loaded, "failed": len(report.Failed)})
	return report, nil
}

// RefreshAll reloads every loaded distribution (and, when retrying is
// enabled, every failed one). A refresh that fails keeps the previous index;
// a distribution that is already refreshing is skipped.
func (r *Registry) RefreshAll(ctx context.Context) *Report {
	r.mu.RLock()
	targets := make([]*slot, 0, len(r.order))
	for _, id := range r.order {
		s := r.slots[id]
		if s.loaded() || r.opts.retryFailed {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	report := r.run(ctx, targets)
	for id, err := range report.Failed {
		logger.Warn("Failed to refresh distribution, keeping previous index", logger.Fields{"distro": id, "error": err})
	}
	logger.Info("Refresh finished", logger.Fields{"refreshed": report.Loaded, "failed": len(report.Failed), "skipped": report.Skipped})
	return report
}

// Refresh reloads a single distribution with the same protocol as RefreshAll.
func (r *Registry) Refresh(ctx context.Context, id string) error {
	r.mu.RLock()
	s, ok := r.slots[id]
	r.mu.RUnlock()
	if !ok || (!s.loaded() && !r.opts.retryFailed) {
		return errors.ErrDistroNotFoundWithID(id)
	}

	before := r.ListDistros()
	err := r.load(ctx, s)
	r.notify(before)
	return err
}

func (r *Registry) run(ctx context.Context, targets []*slot) *Report {
	before := r.ListDistros()
	report := newReport()

	var g errgroup.Group
	g.SetLimit(r.opts.maxConcurrentLoads)
	for _, s := range targets {
		g.Go(func() error {
			report.record(s.cfg.ID, r.load(ctx, s))
			return nil
		})
	}
	_ = g.Wait()

	report.sort()
	r.notify(before)
	return report
}

// load builds a new index off to the side and swaps it in on success.
func (r *Registry) load(ctx context.Context, s *slot) error {
	if !s.refreshing.TryLock() {
		return fmt.Errorf("%s: %w", s.cfg.ID, errors.ErrRefreshRunning)
	}
	defer s.refreshing.Unlock()

	if r.opts.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	next, err := r.loader.Load(ctx, s.cfg)
	if err == nil && next == nil {
		err = fmt.Errorf("loader returned no index for %s", s.cfg.ID)
	}
	r.opts.metrics.RefreshDone(s.cfg.ID, time.Since(start), err)
	if err != nil {
		s.fail(err)
		r.opts.metrics.DistroLoaded(s.cfg.ID, s.loaded(), s.status().Packages)
		return err
	}

	prev := s.swap(next)
	if prev != nil {
		if err := prev.Close(); err != nil {
			logger.Warn("Failed to close previous index", logger.Fields{"distro": s.cfg.ID, "error": err})
		}
	}
	info := next.Info()
	r.opts.metrics.DistroLoaded(s.cfg.ID, true, info.Packages)
	logger.Debug("Distribution index published", logger.Fields{
		"distro":   s.cfg.ID,
		"packages": info.Packages,
		"took":     time.Since(start).Round(time.Millisecond).String(),
	})
	return nil
}

func (r *Registry) notify(before []string) {
	if r.opts.onChange == nil {
		return
	}
	if after := r.ListDistros(); !slices.Equal(before, after) {
		r.opts.onChange(after)
	}
}

// Lookup returns the handle of a loaded distribution.
func (r *Registry) Lookup(id string) (*Handle, error) {
	r.mu.RLock()
	s, ok := r.slots[id]
	r.mu.RUnlock()
	if !ok || !s.loaded() {
		return nil, errors.ErrDistroNotFoundWithID(id)
	}
	return &Handle{s: s}, nil
}

// ListDistros returns the ids of the loaded distributions, sorted.
func (r *Registry) ListDistros() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.slots))
	for id, s := range r.slots {
		if s.loaded() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Status describes every configured distribution in configuration order.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.slots[id].status())
	}
	return out
}

// Close releases every loaded index.
func (r *Registry) Close() error {
	r.mu.RLock()
	slots := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, s := range slots {
		if prev := s.detach(); prev != nil {
			if err := prev.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
