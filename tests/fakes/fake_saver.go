package fakes

import (
	"context"
	"sync"

	"github.com/systmms/wbctl/internal/manifest"
)

// FakeSaver records every manifest list saved through it.
type FakeSaver struct {
	mu    sync.Mutex
	Saves [][]*manifest.Manifest
	Err   error
}

// Save implements registry.Saver.
func (f *FakeSaver) Save(_ context.Context, manifests []*manifest.Manifest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Saves = append(f.Saves, manifests)
	return nil
}

// Count returns the number of successful saves.
func (f *FakeSaver) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Saves)
}

// Last returns the names in the last saved list.
func (f *FakeSaver) Last() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Saves) == 0 {
		return nil
	}
	last := f.Saves[len(f.Saves)-1]
	names := make([]string, 0, len(last))
	for _, m := range last {
		names = append(names, m.Name())
	}
	return names
}
