package cookies

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Keyring.Get when no item exists.
var ErrNotFound = errors.New("keyring item not found")

// Keyring abstracts OS credential storage so it can be faked in tests.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, value string) error
	Delete(service, user string) error
}

// OSKeyring stores items in the platform keychain (macOS Keychain, Secret
// Service on Linux, Credential Manager on Windows).
type OSKeyring struct{}

// Get implements Keyring.
func (OSKeyring) Get(service, user string) (string, error) {
	v, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

// Set implements Keyring.
func (OSKeyring) Set(service, user, value string) error {
	return keyring.Set(service, user, value)
}

// Delete implements Keyring. Deleting a missing item is not an error.
func (OSKeyring) Delete(service, user string) error {
	err := keyring.Delete(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

var _ Keyring = OSKeyring{}
