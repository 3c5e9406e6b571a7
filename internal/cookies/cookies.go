// Package cookies reads the credential cookies that the backend sets after a
// successful login, and persists them between wbctl invocations.
package cookies

import (
	"net/http"
	"net/url"
	"strings"
)

// Credential cookie names written by the backend login command.
const (
	Username     = "wb-username"
	Password     = "wb-password"
	ClientID     = "wb-client-id"
	ClientSecret = "wb-client-secret"
	AccessToken  = "wb-access-token"
	AccessSecret = "wb-access-secret"
)

// CredentialNames lists every cookie that carries a credential.
var CredentialNames = []string{Username, Password, ClientID, ClientSecret, AccessToken, AccessSecret}

// IsCredential reports whether name is one of CredentialNames.
func IsCredential(name string) bool {
	for _, n := range CredentialNames {
		if n == name {
			return true
		}
	}
	return false
}

// Store reads named cookie values.
type Store interface {
	// Value returns the cookie value with surrounding double quotes trimmed.
	// ok is false when the cookie is absent.
	Value(name string) (value string, ok bool)
}

// HeaderStore reads cookies from a raw "a=1; b=2" header string.
type HeaderStore string

// Value implements Store. The first cookie with a matching name wins.
func (h HeaderStore) Value(name string) (string, bool) {
	prefix := name + "="
	for _, part := range strings.Split(string(h), ";") {
		part = strings.TrimLeft(part, " ")
		if strings.HasPrefix(part, prefix) {
			return TrimQuotes(part[len(prefix):]), true
		}
	}
	return "", false
}

// JarStore reads cookies that a jar would send to URL.
type JarStore struct {
	Jar http.CookieJar
	URL *url.URL
}

// Value implements Store.
func (j JarStore) Value(name string) (string, bool) {
	if j.Jar == nil || j.URL == nil {
		return "", false
	}
	for _, c := range j.Jar.Cookies(j.URL) {
		if c.Name == name {
			return TrimQuotes(c.Value), true
		}
	}
	return "", false
}

// MapStore is a fixed set of cookies, mostly useful in tests.
type MapStore map[string]string

// Value implements Store.
func (m MapStore) Value(name string) (string, bool) {
	v, ok := m[name]
	if !ok {
		return "", false
	}
	return TrimQuotes(v), true
}

// TrimQuotes strips one pair of surrounding double quotes.
func TrimQuotes(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
