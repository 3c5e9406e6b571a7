package secure

import (
	"net/url"
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

// SecureBuffer provides memory-safe storage for a single secret value.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer seals data into an enclave. memguard wipes the source slice.
func NewSecureBuffer(data []byte) *SecureBuffer {
	if len(data) == 0 {
		// memguard refuses empty enclaves
		return &SecureBuffer{}
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}
}

// Reveal decrypts the value. An empty string is returned after Destroy.
func (s *SecureBuffer) Reveal() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed || s.enclave == nil {
		return "", nil
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. Idempotent.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}

// Fields is a form body where sensitive values live in enclaves.
type Fields struct {
	mu     sync.Mutex
	plain  map[string]string
	sealed map[string]*SecureBuffer
}

// NewFields creates an empty field set.
func NewFields() *Fields {
	return &Fields{
		plain:  make(map[string]string),
		sealed: make(map[string]*SecureBuffer),
	}
}

// Set stores a value, sealing it when sensitive is true. Empty values are skipped.
func (f *Fields) Set(name, value string, sensitive bool) {
	if value == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.sealed[name]; ok {
		old.Destroy()
		delete(f.sealed, name)
	}
	delete(f.plain, name)

	if sensitive {
		f.sealed[name] = NewSecureBuffer([]byte(value))
		return
	}
	f.plain[name] = value
}

// SetPresent is Set for values that must be sent even when empty. An empty
// value is kept in the clear.
func (f *Fields) SetPresent(name, value string, sensitive bool) {
	if value != "" {
		f.Set(name, value, sensitive)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if old, ok := f.sealed[name]; ok {
		old.Destroy()
		delete(f.sealed, name)
	}
	f.plain[name] = ""
}

// Has reports whether a value was stored under name.
func (f *Fields) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, plain := f.plain[name]
	_, sealed := f.sealed[name]
	return plain || sealed
}

// Names returns the stored field names, sorted.
func (f *Fields) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.plain)+len(f.sealed))
	for name := range f.plain {
		names = append(names, name)
	}
	for name := range f.sealed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode reveals every value into url.Values for a single request.
func (f *Fields) Encode() (url.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values := url.Values{}
	for name, value := range f.plain {
		values.Set(name, value)
	}
	for name, buf := range f.sealed {
		value, err := buf.Reveal()
		if err != nil {
			return nil, err
		}
		values.Set(name, value)
	}
	return values, nil
}

// Secrets reveals the sealed values so callers can scrub them from error text.
func (f *Fields) Secrets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets := make([]string, 0, len(f.sealed))
	for _, buf := range f.sealed {
		if value, err := buf.Reveal(); err == nil && value != "" {
			secrets = append(secrets, value)
		}
	}
	return secrets
}

// Destroy wipes every sealed value.
func (f *Fields) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for name, buf := range f.sealed {
		buf.Destroy()
		delete(f.sealed, name)
	}
	f.plain = make(map[string]string)
}
