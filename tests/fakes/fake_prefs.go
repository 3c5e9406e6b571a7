package fakes

import (
	"context"
	"sync"
)

// FakePrefStore is an in-memory preference store.
type FakePrefStore struct {
	mu     sync.Mutex
	Values map[string]string
	Writes map[string]int

	GetErr error
	SetErr error
}

// NewFakePrefStore returns an empty store.
func NewFakePrefStore() *FakePrefStore {
	return &FakePrefStore{
		Values: make(map[string]string),
		Writes: make(map[string]int),
	}
}

// Get implements prefs.Store.
func (s *FakePrefStore) Get(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return "", s.GetErr
	}
	return s.Values[name], nil
}

// Set implements prefs.Store.
func (s *FakePrefStore) Set(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.Values[name] = value
	s.Writes[name]++
	return nil
}

// Value returns the stored value and write count for name.
func (s *FakePrefStore) Value(name string) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Values[name], s.Writes[name]
}
