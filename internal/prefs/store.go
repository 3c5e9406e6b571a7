// Package prefs stores named preference values. The default store is the
// extension backend itself; a SQL table can be used instead when several
// hosts share one registry.
package prefs

import (
	"context"
	"fmt"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/config"
	"github.com/systmms/wbctl/internal/logging"
)

// Well-known preference names.
const (
	Manifests = "wikibase.manifests"
	Selected  = "wikibase.selected"
)

// Store reads and writes preference values. Get returns "" for unset names.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// HTTPStore keeps preferences on the extension backend.
type HTTPStore struct {
	client *backend.Client
}

// NewHTTPStore returns a store backed by the backend's preference commands.
func NewHTTPStore(client *backend.Client) *HTTPStore {
	return &HTTPStore{client: client}
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, name string) (string, error) {
	return s.client.GetPreference(ctx, name)
}

// Set implements Store.
func (s *HTTPStore) Set(ctx context.Context, name, value string) error {
	return s.client.SetPreference(ctx, name, value)
}

// Open returns the store selected by def. The returned close function must be
// called when the store is no longer needed.
func Open(ctx context.Context, def *config.Definition, client *backend.Client, logger *logging.Logger) (Store, func() error, error) {
	switch def.Preferences.Store {
	case config.StoreHTTP, "":
		return NewHTTPStore(client), func() error { return nil }, nil
	case config.StorePostgres, config.StoreMySQL:
		s, err := OpenSQL(ctx, def.Preferences.Store, def.Preferences.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using %s preference store", def.Preferences.Store)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported preference store: %s", def.Preferences.Store)
	}
}
