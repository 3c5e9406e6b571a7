// Package browser opens the delegated authorization page in a Chrome window
// driven over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/systmms/wbctl/internal/cookies"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/login"
)

// Config selects the browser binary.
type Config struct {
	Bin      string // empty means look up a local Chrome or download one
	Headless bool
}

// Opener launches one browser per authorization window. When a jar is set,
// the backend cookies are copied into the browser before the page loads and
// the credential cookies the backend sets are copied back once the user
// closes the window.
type Opener struct {
	cfg    Config
	jar    http.CookieJar
	base   *url.URL
	logger *logging.Logger
}

// NewOpener returns an opener sharing cookies with jar for base.
func NewOpener(cfg Config, jar http.CookieJar, base *url.URL, logger *logging.Logger) *Opener {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Opener{cfg: cfg, jar: jar, base: base, logger: logger.Named("browser")}
}

// Open implements login.Opener.
func (o *Opener) Open(ctx context.Context, target string) (login.Window, error) {
	l := launcher.New().Headless(o.cfg.Headless).Leakless(false)
	if o.cfg.Bin != "" {
		l = l.Bin(o.cfg.Bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	w := &Window{opener: o, launcher: l, browser: b}

	if params := o.seedCookies(); len(params) > 0 {
		if err := b.SetCookies(params); err != nil {
			o.logger.Warn("could not seed browser cookies: %v", err)
		}
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	w.target = page.TargetID
	o.logger.Debug("opened %s in target %s", target, w.target)
	return w, nil
}

func (o *Opener) seedCookies() []*proto.NetworkCookieParam {
	if o.jar == nil || o.base == nil {
		return nil
	}
	return toParams(o.base, o.jar.Cookies(o.base))
}

// Window is one launched browser showing the authorization page.
type Window struct {
	opener   *Opener
	launcher *launcher.Launcher
	browser  *rod.Browser
	target   proto.TargetTargetID

	mu     sync.Mutex
	closed bool
}

// Closed implements login.Window. The window counts as closed once its
// page target is gone. Every poll copies the credential cookies over, since
// closing the last tab may take the whole browser down with it.
func (w *Window) Closed(ctx context.Context) (bool, error) {
	b := w.browser.Context(ctx)
	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return false, err
	}
	w.harvest(b)
	for _, info := range res.TargetInfos {
		if info.TargetID == w.target {
			return false, nil
		}
	}
	return true, nil
}

// harvest copies the credential cookies from the browser into the jar.
func (w *Window) harvest(b *rod.Browser) {
	if w.opener.jar == nil || w.opener.base == nil {
		return
	}
	got, err := b.GetCookies()
	if err != nil {
		w.opener.logger.Warn("could not read browser cookies: %v", err)
		return
	}
	if found := fromBrowser(w.opener.base, got); len(found) > 0 {
		w.opener.jar.SetCookies(w.opener.base, found)
		w.opener.logger.Debug("copied %d credential cookies from the browser", len(found))
	}
}

// Close implements login.Window. It shuts the browser down.
func (w *Window) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.browser.Close()
	w.launcher.Kill()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func toParams(base *url.URL, jarCookies []*http.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(jarCookies))
	for _, c := range jarCookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:  c.Name,
			Value: c.Value,
			URL:   base.String(),
			Path:  "/",
		})
	}
	return params
}

// fromBrowser keeps the credential cookies the browser holds for base's host.
func fromBrowser(base *url.URL, got []*proto.NetworkCookie) []*http.Cookie {
	var out []*http.Cookie
	for _, c := range got {
		if !cookies.IsCredential(c.Name) || !domainMatches(c.Domain, base.Hostname()) {
			continue
		}
		hc := &http.Cookie{Name: c.Name, Value: c.Value, Path: c.Path}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

func domainMatches(domain, host string) bool {
	if domain == "" || domain == host {
		return true
	}
	if strings.HasPrefix(domain, ".") {
		return host == domain[1:] || strings.HasSuffix(host, domain)
	}
	return false
}
