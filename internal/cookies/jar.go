package cookies

import (
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/systmms/wbctl/internal/logging"
)

// cookieLifetime matches the max age the backend gives remembered credentials.
const cookieLifetime = 365 * 24 * time.Hour

// PersistentJar is an http.CookieJar that mirrors credential cookies into a
// Keyring, so that a later process can log in silently the way a browser
// would with its own cookie jar.
type PersistentJar struct {
	jar     *cookiejar.Jar
	keyring Keyring
	service string
	logger  *logging.Logger

	mu       sync.Mutex
	restored bool
}

// NewPersistentJar creates a jar. A nil keyring keeps cookies in memory only.
func NewPersistentJar(kr Keyring, service string, logger *logging.Logger) (*PersistentJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &PersistentJar{
		jar:     jar,
		keyring: kr,
		service: service,
		logger:  logger.Named("cookies"),
	}, nil
}

// Restore loads the persisted credential cookies for u into the jar.
// It only runs once per jar.
func (p *PersistentJar) Restore(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.restored || p.keyring == nil {
		return nil
	}
	p.restored = true

	var restored []*http.Cookie
	var errs []error
	for _, name := range CredentialNames {
		value, err := p.keyring.Get(p.service, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		restored = append(restored, &http.Cookie{
			Name:    name,
			Value:   value,
			Path:    "/",
			Expires: time.Now().Add(cookieLifetime),
		})
	}

	if len(restored) > 0 {
		p.jar.SetCookies(u, restored)
		p.logger.Debug("restored %d credential cookies from keyring", len(restored))
	}
	return errors.Join(errs...)
}

// SetCookies implements http.CookieJar.
func (p *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.jar.SetCookies(u, cookies)

	if p.keyring == nil {
		return
	}
	for _, c := range cookies {
		if !IsCredential(c.Name) {
			continue
		}
		var err error
		if c.MaxAge < 0 || c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			err = p.keyring.Delete(p.service, c.Name)
		} else {
			err = p.keyring.Set(p.service, c.Name, c.Value)
		}
		if err != nil {
			p.logger.Warn("could not persist cookie %s: %v", c.Name, err)
		}
	}
}

// Cookies implements http.CookieJar.
func (p *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return p.jar.Cookies(u)
}

// Forget removes every credential cookie from the keyring.
func (p *PersistentJar) Forget() error {
	if p.keyring == nil {
		return nil
	}
	var errs []error
	for _, name := range CredentialNames {
		if err := p.keyring.Delete(p.service, name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ http.CookieJar = (*PersistentJar)(nil)
