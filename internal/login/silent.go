// Package login resolves which user the extension backend is logged in as,
// re-authenticating silently from stored credential cookies where possible
// and otherwise walking the user through the login flow that the backend's
// mode allows.
package login

import (
	"context"
	"net/url"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/cookies"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/secure"
)

// Identity is the username of the logged in user.
type Identity string

// Anonymous means no user is logged in.
const Anonymous Identity = ""

// IsAnonymous reports whether no user is logged in.
func (i Identity) IsAnonymous() bool {
	return i == Anonymous
}

// RememberField asks the backend to store credentials as cookies.
const RememberField = "remember-credentials"

// Backend is the part of the extension backend that login needs.
type Backend interface {
	Session(ctx context.Context) (backend.Session, error)
	Login(ctx context.Context, form url.Values) (backend.Session, error)
	Logout(ctx context.Context) (backend.Session, error)
	Mode(ctx context.Context) (backend.Mode, error)
	AuthorizeURL() string
}

// SilentLogin re-authenticates from stored credential cookies.
type SilentLogin struct {
	backend Backend
	cookies cookies.Store
	logger  *logging.Logger
}

// NewSilentLogin returns a SilentLogin reading credentials from store.
func NewSilentLogin(b Backend, store cookies.Store, logger *logging.Logger) *SilentLogin {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SilentLogin{backend: b, cookies: store, logger: logger.Named("silent")}
}

// Attempt asks the backend for its mode and then tries AttemptIn.
func (s *SilentLogin) Attempt(ctx context.Context) (Identity, error) {
	mode, err := s.backend.Mode(ctx)
	if err != nil {
		return Anonymous, err
	}
	return s.AttemptIn(ctx, mode)
}

// AttemptIn posts the stored credentials that mode accepts. Without a
// complete credential set no request is made. A rejected login is not an
// error: it yields Anonymous.
func (s *SilentLogin) AttemptIn(ctx context.Context, mode backend.Mode) (Identity, error) {
	fields, ok := CredentialFields(mode, s.cookies)
	if !ok {
		s.logger.Debug("no complete credential cookies for %s mode", mode)
		return Anonymous, nil
	}
	defer fields.Destroy()

	form, err := fields.Encode()
	if err != nil {
		return Anonymous, err
	}
	form.Set(RememberField, "on")

	session, err := s.backend.Login(ctx, form)
	if err != nil {
		return Anonymous, err
	}
	if !session.LoggedIn {
		s.logger.Debug("stored credentials were rejected")
		return Anonymous, nil
	}
	s.logger.Debug("logged in silently as %s", session.Username)
	return Identity(session.Username), nil
}

// CredentialFields assembles the credential set mode accepts from store.
// Local backends prefer username and password over the owner-only consumer
// four-tuple; hosted backends only accept an access token pair. ok is false
// when no set is complete. A cookie that is present but empty counts.
func CredentialFields(mode backend.Mode, store cookies.Store) (*secure.Fields, bool) {
	var variants [][]string
	if mode == backend.ModeLocal {
		variants = [][]string{
			{cookies.Username, cookies.Password},
			{cookies.ClientID, cookies.ClientSecret, cookies.AccessToken, cookies.AccessSecret},
		}
	} else {
		variants = [][]string{
			{cookies.AccessToken, cookies.AccessSecret},
		}
	}

	for _, names := range variants {
		values, ok := readAll(store, names)
		if !ok {
			continue
		}
		fields := secure.NewFields()
		for i, name := range names {
			fields.SetPresent(name, values[i], name != cookies.Username && name != cookies.ClientID)
		}
		return fields, true
	}
	return nil, false
}

func readAll(store cookies.Store, names []string) ([]string, bool) {
	if store == nil {
		return nil, false
	}
	values := make([]string, len(names))
	for i, name := range names {
		v, ok := store.Value(name)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
