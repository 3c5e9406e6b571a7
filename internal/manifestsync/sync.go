package manifestsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/manifest"
	"github.com/systmms/wbctl/internal/metrics"
	"github.com/systmms/wbctl/internal/prefs"
	"github.com/systmms/wbctl/internal/registry"
)

// Defaults for the refresh policy.
const (
	DefaultStaleness    = 7 * 24 * time.Hour
	DefaultRefreshGrace = 10 * time.Second
)

// Syncer loads the registry from preferences and keeps fetched manifests
// fresh. It also implements registry.Saver.
type Syncer struct {
	store     prefs.Store
	fetcher   *Fetcher
	staleness time.Duration
	grace     time.Duration
	metrics   *metrics.Recorder
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithStaleness sets how old a fetched manifest may get before it is refreshed.
func WithStaleness(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithRefreshGrace bounds how long a refresh batch may run before the
// registry is persisted.
func WithRefreshGrace(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithSyncMetrics records refresh outcomes.
func WithSyncMetrics(m *metrics.Recorder) Option {
	return func(s *Syncer) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Syncer) {
		s.logger = l.Named("sync")
	}
}

// WithNow overrides the clock used for staleness checks.
func WithNow(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// New returns a Syncer persisting to store and fetching with fetcher.
func New(store prefs.Store, fetcher *Fetcher, opts ...Option) *Syncer {
	s := &Syncer{
		store:     store,
		fetcher:   fetcher,
		staleness: DefaultStaleness,
		grace:     DefaultRefreshGrace,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report summarises a load or refresh pass.
type Report struct {
	Loaded    []string
	Refreshed []string
	Failed    []string
	Invalid   []error
	Persisted bool
}

// Merge adds the outcome of a refresh batch to r.
func (r Report) Merge(batch Report) Report {
	r.Refreshed = append(r.Refreshed, batch.Refreshed...)
	r.Failed = append(r.Failed, batch.Failed...)
	r.Invalid = append(r.Invalid, batch.Invalid...)
	r.Persisted = r.Persisted || batch.Persisted
	return r
}

// Refresh is a refresh batch running in the background.
type Refresh struct {
	done   chan struct{}
	report Report
}

// Done is closed once the batch finished and the registry was persisted.
func (r *Refresh) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the batch finished or ctx is done. A nil Refresh has
// nothing to wait for.
func (r *Refresh) Wait(ctx context.Context) (Report, error) {
	if r == nil {
		return Report{}, nil
	}
	select {
	case <-r.done:
		return r.report, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Save implements registry.Saver by writing the list as one JSON array.
func (s *Syncer) Save(ctx context.Context, manifests []*manifest.Manifest) error {
	if manifests == nil {
		manifests = []*manifest.Manifest{}
	}
	data, err := json.Marshal(manifests)
	if err != nil {
		return fmt.Errorf("encode manifests: %w", err)
	}
	return s.store.Set(ctx, prefs.Manifests, string(data))
}

// SaveSelection remembers which manifest is selected.
func (s *Syncer) SaveSelection(ctx context.Context, name string) error {
	return s.store.Set(ctx, prefs.Selected, name)
}

// LoadAndRefresh merges the persisted manifests into reg and returns without
// waiting for the network. Fetched manifests older than the staleness window
// are registered as they are and fetched again silently in the background; a
// successful fetch replaces the entry and a failed one keeps the persisted
// copy. The returned Refresh, nil when nothing was stale, completes after the
// merged registry was persisted once, when the batch finished or the grace
// period ran out. The persisted selection is restored if it names a
// registered manifest.
func (s *Syncer) LoadAndRefresh(ctx context.Context, reg *registry.Registry) (Report, *Refresh, error) {
	var report Report

	raw, err := s.store.Get(ctx, prefs.Manifests)
	if err != nil {
		return report, nil, fmt.Errorf("load manifests: %w", err)
	}

	persisted, invalid, err := manifest.ParseList([]byte(raw))
	if err != nil {
		return report, nil, err
	}
	report.Invalid = invalid
	for _, e := range invalid {
		s.logger.Warn("skipping persisted manifest: %v", e)
	}

	now := s.now()
	var stale []*manifest.Manifest
	for _, m := range persisted {
		if err := reg.Put(m); err != nil {
			report.Invalid = append(report.Invalid, err)
			continue
		}
		if m.StaleAt(now, s.staleness) {
			stale = append(stale, m)
			continue
		}
		report.Loaded = append(report.Loaded, m.Name())
	}

	if err := s.restoreSelection(ctx, reg); err != nil {
		s.logger.Warn("restore selection: %v", err)
	}
	s.metrics.SetRegistrySize(reg.Len())

	if len(stale) == 0 {
		return report, nil, nil
	}

	r := &Refresh{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		s.refresh(ctx, reg, stale, &r.report)
		if err := reg.Persist(ctx); err != nil {
			s.logger.Warn("%v", err)
		} else {
			r.report.Persisted = true
		}
		s.metrics.SetRegistrySize(reg.Len())
	}()
	return report, r, nil
}

// RefreshStale refreshes the stale fetched manifests already in reg and
// persists once if any was due.
func (s *Syncer) RefreshStale(ctx context.Context, reg *registry.Registry) (Report, error) {
	var report Report

	now := s.now()
	var stale []*manifest.Manifest
	for _, m := range reg.All() {
		if m.StaleAt(now, s.staleness) {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return report, nil
	}

	s.refresh(ctx, reg, stale, &report)
	if err := reg.Persist(ctx); err != nil {
		return report, err
	}
	report.Persisted = true
	s.metrics.SetRegistrySize(reg.Len())
	return report, nil
}

// Watch runs RefreshStale every interval until ctx is done.
func (s *Syncer) Watch(ctx context.Context, reg *registry.Registry, interval time.Duration, onReport func(Report, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := s.RefreshStale(ctx, reg)
			if onReport != nil {
				onReport(report, err)
			}
		}
	}
}

// refresh fetches every stale manifest concurrently. The stale entries are
// already registered; fetches still running when the grace period ends are
// abandoned and their old copy kept.
func (s *Syncer) refresh(ctx context.Context, reg *registry.Registry, stale []*manifest.Manifest, report *Report) {
	batchCtx, cancel := context.WithTimeout(ctx, s.grace)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(batchCtx)
	for _, old := range stale {
		old := old
		g.Go(func() error {
			fresh, err := s.fetcher.Fetch(gctx, old.Provenance.SourceURL, true)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Debug("refresh of %s failed, keeping cached copy: %v", old.Name(), err)
				s.metrics.RecordRefresh(false)
				report.Failed = append(report.Failed, old.Name())
				return nil
			}
			s.metrics.RecordRefresh(true)
			if _, ok := reg.Get(old.Name()); !ok {
				s.logger.Debug("%s was removed during its refresh", old.Name())
				return nil
			}
			report.Refreshed = append(report.Refreshed, fresh.Name())
			return reg.Put(fresh)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("manifest refresh: %v", err)
	}

	sort.Strings(report.Refreshed)
	sort.Strings(report.Failed)
}

func (s *Syncer) restoreSelection(ctx context.Context, reg *registry.Registry) error {
	name, err := s.store.Get(ctx, prefs.Selected)
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	if !reg.Select(name) {
		s.logger.Debug("persisted selection %q is not registered", name)
	}
	return nil
}
