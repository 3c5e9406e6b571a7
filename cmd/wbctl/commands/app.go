package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/browser"
	"github.com/systmms/wbctl/internal/config"
	"github.com/systmms/wbctl/internal/cookies"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/login"
	"github.com/systmms/wbctl/internal/manifestsync"
	"github.com/systmms/wbctl/internal/metrics"
	"github.com/systmms/wbctl/internal/prefs"
	"github.com/systmms/wbctl/internal/registry"
	"github.com/systmms/wbctl/internal/tui"
)

// keyring is swapped out by tests.
var keyring cookies.Keyring = cookies.OSKeyring{}

// app is the wired object graph shared by all commands.
type app struct {
	def      *config.Definition
	logger   *logging.Logger
	jar      *cookies.PersistentJar
	client   *backend.Client
	store    prefs.Store
	registry *registry.Registry
	fetcher  *manifestsync.Fetcher
	syncer   *manifestsync.Syncer
	silent   *login.SilentLogin
	ctrl     *login.Controller
	metrics  *metrics.Recorder
	refresh  *manifestsync.Refresh

	closeStore func() error
}

// openApp loads the configuration and wires every component. The caller must
// call close.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	def := cfg.Get()
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	var kr cookies.Keyring
	if def.PersistCredentials() {
		kr = keyring
	}
	jar, err := cookies.NewPersistentJar(kr, def.Credentials.KeyringService, logger)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	client, err := backend.New(def.Backend.URL,
		backend.WithJar(jar),
		backend.WithTimeout(def.Backend.Timeout),
		backend.WithLogger(logger),
	)
	if err != nil {
		return nil, wberrors.ConfigError{
			Field:      "backend.url",
			Value:      def.Backend.URL,
			Message:    err.Error(),
			Suggestion: "Use format: http://hostname:port/",
		}
	}
	if err := jar.Restore(client.BaseURL()); err != nil {
		logger.Warn("could not restore saved credentials: %v", err)
	}

	store, closeStore, err := prefs.Open(ctx, def, client, logger)
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	presenter, notifier := presenters(cfg, logger)

	fetcher := manifestsync.NewFetcher(
		manifestsync.WithHTTPClient(&http.Client{}),
		manifestsync.WithFetchTimeout(def.Manifests.FetchTimeout),
		manifestsync.WithNotifier(notifier),
		manifestsync.WithMetrics(rec),
		manifestsync.WithFetchLogger(logger),
	)
	syncer := manifestsync.New(store, fetcher,
		manifestsync.WithStaleness(def.Manifests.Staleness),
		manifestsync.WithRefreshGrace(def.Manifests.RefreshGrace),
		manifestsync.WithSyncMetrics(rec),
		manifestsync.WithLogger(logger),
	)
	reg := registry.New(registry.WithSaver(syncer), registry.WithLogger(logger))

	silent := login.NewSilentLogin(client, cookies.JarStore{Jar: jar, URL: client.BaseURL()}, logger)

	opts := []login.Option{
		login.WithProfileURL(reg.ProfileURL),
		login.WithRemember(def.PersistCredentials()),
		login.WithMetrics(rec),
		login.WithLogger(logger),
	}
	if !cfg.NonInteractive {
		opener := browser.NewOpener(browser.Config{Bin: def.Browser.Bin, Headless: def.Browser.Headless}, jar, client.BaseURL(), logger)
		opts = append(opts, login.WithAuthWindow(login.NewAuthWindow(opener, def.Auth.PollInterval, logger)))
	}
	ctrl := login.NewController(client, silent, presenter, opts...)

	return &app{
		def:        def,
		logger:     logger,
		jar:        jar,
		client:     client,
		store:      store,
		registry:   reg,
		fetcher:    fetcher,
		syncer:     syncer,
		silent:     silent,
		ctrl:       ctrl,
		metrics:    rec,
		closeStore: closeStore,
	}, nil
}

func (a *app) close() {
	// Let a background refresh persist before the store goes away.
	wait, cancel := context.WithTimeout(context.Background(), a.def.Manifests.RefreshGrace+a.def.Backend.Timeout)
	defer cancel()
	if _, err := a.refresh.Wait(wait); err != nil {
		a.logger.Warn("manifest refresh still running at exit: %v", err)
	}

	if err := a.closeStore(); err != nil {
		a.logger.Warn("closing preference store: %v", err)
	}
	a.logger.Sync()
}

// loadRegistry fills the registry from preferences. Stale manifests are
// refreshed in the background; close waits for that refresh.
func (a *app) loadRegistry(ctx context.Context) (manifestsync.Report, error) {
	report, refresh, err := a.syncer.LoadAndRefresh(ctx, a.registry)
	a.refresh = refresh
	for _, invalid := range report.Invalid {
		a.logger.Warn("skipped stored manifest: %v", invalid)
	}
	return report, err
}

// waitRefresh blocks until the background refresh started by loadRegistry
// is done and adds its outcome to report.
func (a *app) waitRefresh(ctx context.Context, report manifestsync.Report) (manifestsync.Report, error) {
	batch, err := a.refresh.Wait(ctx)
	if err != nil {
		return report, err
	}
	return report.Merge(batch), nil
}

func presenters(cfg *config.Config, logger *logging.Logger) (login.Presenter, manifestsync.Notifier) {
	if cfg.NonInteractive {
		n := logNotifier{logger: logger}
		return headless{logNotifier: n}, n
	}
	p := tui.New(tui.WithLogger(logger))
	return p, p
}

// logNotifier reports fetch progress through the logger.
type logNotifier struct {
	logger *logging.Logger
}

func (n logNotifier) Busy(message string) func() {
	n.logger.Debug("%s", message)
	return func() {}
}

func (n logNotifier) Alert(message string) {
	n.logger.Warn("%s", message)
}

// headless refuses to show dialogs.
type headless struct {
	logNotifier
}

func (headless) Present(login.Form) (login.Frame, error) {
	return nil, wberrors.UserError{
		Message:    "Interactive login required",
		Suggestion: "Run 'wbctl login' without --non-interactive, or store credentials first",
		Err:        wberrors.ErrCancelled,
	}
}
