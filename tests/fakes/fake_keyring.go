package fakes

import (
	"sync"

	"github.com/systmms/wbctl/internal/cookies"
)

// FakeKeyring is a test double for cookies.Keyring
type FakeKeyring struct {
	mu sync.Mutex

	// Items is a map of service -> user -> value
	Items map[string]map[string]string

	// GetErr, SetErr and DeleteErr override the corresponding operation when set
	GetErr    error
	SetErr    error
	DeleteErr error
}

// NewFakeKeyring creates an empty fake keyring
func NewFakeKeyring() *FakeKeyring {
	return &FakeKeyring{Items: make(map[string]map[string]string)}
}

// Get returns the stored value or cookies.ErrNotFound
func (f *FakeKeyring) Get(service, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return "", f.GetErr
	}
	if users, ok := f.Items[service]; ok {
		if value, ok := users[user]; ok {
			return value, nil
		}
	}
	return "", cookies.ErrNotFound
}

// Set stores a value
func (f *FakeKeyring) Set(service, user, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetErr != nil {
		return f.SetErr
	}
	if f.Items == nil {
		f.Items = make(map[string]map[string]string)
	}
	if f.Items[service] == nil {
		f.Items[service] = make(map[string]string)
	}
	f.Items[service][user] = value
	return nil
}

// Delete removes a value; missing values are ignored
func (f *FakeKeyring) Delete(service, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.Items[service], user)
	return nil
}

// Lookup is a test helper returning the value and whether it exists
func (f *FakeKeyring) Lookup(service, user string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.Items[service][user]
	return value, ok
}

// Ensure FakeKeyring implements cookies.Keyring
var _ cookies.Keyring = (*FakeKeyring)(nil)
