// Package registry holds the wikibase manifests known to this process and
// which one is selected.
package registry

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/manifest"
)

// Saver persists the full manifest list.
type Saver interface {
	Save(ctx context.Context, manifests []*manifest.Manifest) error
}

// Registry maps wikibase names to manifests. The selected name always refers
// to an entry; the built-in default is always present.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*manifest.Manifest
	selected string

	saver  Saver
	logger *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSaver sets where Add and Remove persist to.
func WithSaver(s Saver) Option {
	return func(r *Registry) {
		r.saver = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = l.Named("registry")
	}
}

// New returns a registry seeded with the built-in manifest, selected.
func New(opts ...Option) *Registry {
	def := manifest.Default()
	r := &Registry{
		entries:  map[string]*manifest.Manifest{def.Name(): def},
		selected: def.Name(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Selected returns a copy of the selected manifest.
func (r *Registry) Selected() *manifest.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[r.selected].Clone()
}

// SelectedName returns the name of the selected manifest.
func (r *Registry) SelectedName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Select makes name the selected manifest. Unknown names are ignored and
// reported with false.
func (r *Registry) Select(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		r.logger.Debug("ignoring selection of unknown wikibase %q", name)
		return false
	}
	r.selected = name
	return true
}

// Get returns a copy of the manifest registered under name.
func (r *Registry) Get(name string) (*manifest.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[name]
	return m.Clone(), ok
}

// All returns copies of every manifest, ordered by name.
func (r *Registry) All() []*manifest.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot()
}

// Len returns the number of registered manifests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Add registers m under its declared name, replacing any entry of that name,
// and persists the registry.
func (r *Registry) Add(ctx context.Context, m *manifest.Manifest) error {
	if err := r.Put(m); err != nil {
		return err
	}
	return r.Persist(ctx)
}

// Put registers m without persisting.
func (r *Registry) Put(m *manifest.Manifest) error {
	if m == nil || m.Name() == "" {
		return fmt.Errorf("%w: manifest has no name", wberrors.ErrInvalidManifest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.Name()] = m.Clone()
	return nil
}

// Remove deletes name and persists the registry. Removing the built-in
// default restores its built-in version. If name was selected, the default
// becomes selected.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	if _, ok := r.entries[name]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", wberrors.ErrUnknownWikibase, name)
	}
	delete(r.entries, name)
	if name == manifest.DefaultName {
		r.entries[name] = manifest.Default()
	}
	if r.selected == name {
		r.selected = manifest.DefaultName
	}
	r.mu.Unlock()

	return r.Persist(ctx)
}

// Persist saves every manifest through the configured Saver.
func (r *Registry) Persist(ctx context.Context) error {
	if r.saver == nil {
		return nil
	}
	r.mu.RLock()
	all := r.snapshot()
	r.mu.RUnlock()

	if err := r.saver.Save(ctx, all); err != nil {
		return fmt.Errorf("persist manifests: %w", err)
	}
	r.logger.Debug("persisted %d manifests", len(all))
	return nil
}

func (r *Registry) snapshot() []*manifest.Manifest {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*manifest.Manifest, 0, len(names))
	for _, name := range names {
		out = append(out, r.entries[name].Clone())
	}
	return out
}

// SelectedRoot is the MediaWiki root of the selected manifest.
func (r *Registry) SelectedRoot() string {
	return r.project(func(m *manifest.Manifest) string { return m.MediaWiki.Root })
}

// SelectedMainPage is the MediaWiki main page of the selected manifest.
func (r *Registry) SelectedMainPage() string {
	return r.project(func(m *manifest.Manifest) string { return m.MediaWiki.MainPage })
}

// SelectedAPI is the MediaWiki API endpoint of the selected manifest.
func (r *Registry) SelectedAPI() string {
	return r.project(func(m *manifest.Manifest) string { return m.MediaWiki.API })
}

// SelectedEntityPrefix is the entity IRI prefix of the selected manifest.
func (r *Registry) SelectedEntityPrefix() string {
	return r.project(func(m *manifest.Manifest) string { return m.EntityPrefix() })
}

// SelectedReconEndpoint is the reconciliation endpoint of the selected manifest.
func (r *Registry) SelectedReconEndpoint() string {
	return r.project(func(m *manifest.Manifest) string { return m.Reconciliation.Endpoint })
}

// ProfileURL links to a user's page on the selected wikibase.
func (r *Registry) ProfileURL(username string) string {
	root := r.SelectedRoot()
	if root == "" || username == "" {
		return ""
	}
	return root + "User:" + url.PathEscape(strings.ReplaceAll(username, " ", "_"))
}

func (r *Registry) project(f func(*manifest.Manifest) string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.entries[r.selected]
	if !ok {
		return ""
	}
	return f(m)
}
