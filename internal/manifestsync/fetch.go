// Package manifestsync fetches wikibase manifests from URLs, keeps remotely
// sourced manifests fresh, and persists the registry through a preference
// store.
package manifestsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/manifest"
	"github.com/systmms/wbctl/internal/metrics"
)

// Transport names.
const (
	TransportHTTP  = "http"
	TransportJSONP = "jsonp"
)

// jsonpCallback is the callback name sent to servers answering JSONP.
const jsonpCallback = "wbctlManifest"

const maxManifestBytes = 4 << 20

// Notifier shows progress and blocking errors to the user.
type Notifier interface {
	// Busy shows a busy indicator and returns the function that hides it.
	Busy(message string) (done func())
	// Alert shows an error the user must acknowledge.
	Alert(message string)
}

// Fetcher downloads manifest documents.
type Fetcher struct {
	http     *http.Client
	timeout  time.Duration
	notifier Notifier
	metrics  *metrics.Recorder
	logger   *logging.Logger
	now      func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used by both transports.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if hc != nil {
			f.http = hc
		}
	}
}

// WithFetchTimeout bounds each transport attempt.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithNotifier sets where busy indicators and alerts go.
func WithNotifier(n Notifier) FetcherOption {
	return func(f *Fetcher) {
		f.notifier = n
	}
}

// WithMetrics records fetch outcomes.
func WithMetrics(m *metrics.Recorder) FetcherOption {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithFetchLogger sets the logger.
func WithFetchLogger(l *logging.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l.Named("fetch")
	}
}

// WithClock overrides the provenance timestamp source.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// NewFetcher returns a Fetcher with a 5 second per-transport timeout.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		http:    &http.Client{},
		timeout: 5 * time.Second,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads and validates the manifest at manifestURL. The direct
// request is tried first; if it fails, the same URL is requested again as
// JSONP. A direct answer that is JSON but not a valid manifest is returned
// as is, without the JSONP retry. The result is stamped with the URL and the fetch time.
//
// Unless silent, a busy indicator is shown for the duration of the fetch and
// a failure of both transports raises an alert naming the URL.
func (f *Fetcher) Fetch(ctx context.Context, manifestURL string, silent bool) (*manifest.Manifest, error) {
	if !silent && f.notifier != nil {
		done := f.notifier.Busy("Contacting the wikibase service...")
		defer done()
	}

	m, err := f.fetch(ctx, manifestURL)
	if err != nil {
		if !silent && f.notifier != nil {
			f.notifier.Alert(fmt.Sprintf("Error contacting the service: %v - %s", err, manifestURL))
		}
		return nil, err
	}
	return m.Stamp(manifestURL, f.now()), nil
}

func (f *Fetcher) fetch(ctx context.Context, manifestURL string) (*manifest.Manifest, error) {
	target, err := url.Parse(manifestURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, &wberrors.TransportError{
			Transport: TransportHTTP,
			URL:       manifestURL,
			Err:       fmt.Errorf("not an http(s) URL"),
		}
	}

	m, primaryErr := f.attempt(ctx, TransportHTTP, manifestURL, f.direct)
	if primaryErr == nil {
		return m, nil
	}
	var rejected *documentError
	if ctx.Err() != nil || errors.As(primaryErr, &rejected) {
		return nil, primaryErr
	}
	f.logger.Debug("direct fetch of %s failed, retrying as jsonp: %v", manifestURL, primaryErr)

	m, err = f.attempt(ctx, TransportJSONP, manifestURL, f.jsonp)
	if err != nil {
		return nil, errors.Join(primaryErr, err)
	}
	return m, nil
}

// documentError is a response that arrived as JSON but failed manifest
// validation.
type documentError struct {
	err error
}

func (e *documentError) Error() string { return e.err.Error() }

func (e *documentError) Unwrap() error { return e.err }

func (f *Fetcher) attempt(ctx context.Context, transport, manifestURL string, get func(context.Context, string) ([]byte, error)) (*manifest.Manifest, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	m, err := f.download(ctx, manifestURL, get)
	f.metrics.RecordFetch(transport, err == nil, time.Since(start).Seconds())
	if err != nil {
		return nil, &wberrors.TransportError{Transport: transport, URL: manifestURL, Err: err}
	}
	return m, nil
}

func (f *Fetcher) download(ctx context.Context, manifestURL string, get func(context.Context, string) ([]byte, error)) (*manifest.Manifest, error) {
	body, err := get(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(body)
	if err != nil && json.Valid(body) {
		return nil, &documentError{err: err}
	}
	return m, err
}

func (f *Fetcher) direct(ctx context.Context, manifestURL string) ([]byte, error) {
	return f.get(ctx, manifestURL, "application/json")
}

func (f *Fetcher) jsonp(ctx context.Context, manifestURL string) ([]byte, error) {
	u, err := url.Parse(manifestURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("callback", jsonpCallback)
	u.RawQuery = q.Encode()

	body, err := f.get(ctx, u.String(), "application/javascript, */*")
	if err != nil {
		return nil, err
	}
	return stripPadding(body, jsonpCallback)
}

func (f *Fetcher) get(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
}

var jsonpComment = regexp.MustCompile(`^\s*/\*\*/\s*`)

// stripPadding unwraps callback(...) around a JSON document.
func stripPadding(body []byte, callback string) ([]byte, error) {
	s := strings.TrimSpace(jsonpComment.ReplaceAllString(string(body), ""))
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return []byte(s), nil
	}

	prefix := callback + "("
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("response is not wrapped in %s(...)", callback)
	}
	return bytes.TrimSpace([]byte(s[len(prefix) : len(s)-1])), nil
}
