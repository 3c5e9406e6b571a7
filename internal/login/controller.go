package login

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/cookies"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/metrics"
	"github.com/systmms/wbctl/internal/secure"
)

// Flow names, also used as metric labels.
const (
	FlowSilent    = "silent"
	FlowLoggedIn  = "logged-in"
	FlowPassword  = "password"
	FlowOwnerOnly = "owner-only-consumer"
	FlowDelegated = "delegated"
)

// Controller decides which login dialog to show and runs it to completion.
// Every entry point returns the resolved identity; Anonymous means the user
// is not logged in or declined to continue.
type Controller struct {
	backend   Backend
	silent    *SilentLogin
	presenter Presenter
	window    *AuthWindow
	profile   func(username string) string
	messages  Messages
	remember  bool
	metrics   *metrics.Recorder
	logger    *logging.Logger

	stack DialogStack

	mu         sync.Mutex
	firstLogin bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithAuthWindow sets the window used for delegated authorization.
func WithAuthWindow(w *AuthWindow) Option {
	return func(c *Controller) {
		c.window = w
	}
}

// WithProfileURL sets how the logged-in view links to a user page.
func WithProfileURL(f func(username string) string) Option {
	return func(c *Controller) {
		c.profile = f
	}
}

// WithMessages replaces the dialog texts.
func WithMessages(m Messages) Option {
	return func(c *Controller) {
		c.messages = m
	}
}

// WithRemember controls whether interactive logins ask the backend to keep
// credential cookies.
func WithRemember(remember bool) Option {
	return func(c *Controller) {
		c.remember = remember
	}
}

// WithMetrics records login outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = l.Named("login")
	}
}

// NewController returns a controller talking to b, re-authenticating through
// silent and presenting dialogs with p.
func NewController(b Backend, silent *SilentLogin, p Presenter, opts ...Option) *Controller {
	c := &Controller{
		backend:    b,
		silent:     silent,
		presenter:  p,
		messages:   DefaultMessages(),
		remember:   true,
		logger:     logging.NewNop(),
		firstLogin: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.silent == nil {
		c.silent = NewSilentLogin(b, nil, c.logger)
	}
	return c
}

// Depth returns the number of dialogs currently open.
func (c *Controller) Depth() int {
	return c.stack.Depth()
}

// EnsureLoggedIn returns the current identity, running the login dialogs
// only when the backend has no session.
func (c *Controller) EnsureLoggedIn(ctx context.Context) (Identity, error) {
	id, err := c.currentIdentity(ctx)
	if err != nil {
		return Anonymous, err
	}
	if !id.IsAnonymous() {
		return id, nil
	}
	return c.Display(ctx, Anonymous)
}

// Manage always shows a dialog: the account view when logged in, the login
// flows otherwise.
func (c *Controller) Manage(ctx context.Context) (Identity, error) {
	id, err := c.currentIdentity(ctx)
	if err != nil {
		return Anonymous, err
	}
	return c.Display(ctx, id)
}

// Display shows the account view for id. Without an identity it first tries
// the stored credentials, then opens the login flow the backend mode allows:
// password for local backends, delegated authorization for hosted ones.
func (c *Controller) Display(ctx context.Context, id Identity) (Identity, error) {
	if !id.IsAnonymous() {
		return c.run(ctx, FlowLoggedIn, id)
	}

	mode, err := c.backend.Mode(ctx)
	if err != nil {
		return Anonymous, fmt.Errorf("query backend mode: %w", err)
	}

	silentID, err := c.silent.AttemptIn(ctx, mode)
	if err != nil {
		c.logger.Warn("silent login failed: %v", err)
	}
	if !silentID.IsAnonymous() {
		c.metrics.RecordLogin(FlowSilent, "success")
		return silentID, nil
	}

	if mode == backend.ModeLocal {
		return c.run(ctx, FlowPassword, Anonymous)
	}
	return c.run(ctx, FlowDelegated, Anonymous)
}

// Logout asks the backend to end the session without showing a dialog.
func (c *Controller) Logout(ctx context.Context) error {
	session, err := c.backend.Logout(ctx)
	if err != nil {
		return err
	}
	if session.LoggedIn {
		return fmt.Errorf("%w: still logged in as %s", wberrors.ErrLogoutNotConfirmed, session.Username)
	}
	return nil
}

func (c *Controller) currentIdentity(ctx context.Context) (Identity, error) {
	c.mu.Lock()
	first := c.firstLogin
	c.firstLogin = false
	c.mu.Unlock()

	if first {
		done := c.presenter.Busy(c.messages.Connecting)
		defer done()
	}

	session, err := c.backend.Session(ctx)
	if err != nil {
		return Anonymous, fmt.Errorf("query session: %w", err)
	}
	if !session.LoggedIn {
		return Anonymous, nil
	}
	return Identity(session.Username), nil
}

// run shows flow and follows switches between the password and owner-only
// forms. Each switch dismisses the current dialog before the next opens.
func (c *Controller) run(ctx context.Context, flow string, id Identity) (Identity, error) {
	for {
		d, err := c.stack.Open(c.presenter, c.form(flow, id))
		if err != nil {
			return Anonymous, err
		}

		result, next, err := c.serve(ctx, d, flow, id)
		if next == "" {
			c.record(flow, result, err)
			return result, err
		}
		d.Dismiss()
		c.logger.Debug("switching from %s to %s", flow, next)
		flow = next
	}
}

// serve handles events of one dialog. A non-empty next names the flow to
// switch to.
func (c *Controller) serve(ctx context.Context, d *Dialog, flow string, id Identity) (Identity, string, error) {
	for {
		select {
		case <-ctx.Done():
			d.Dismiss()
			return Anonymous, "", ctx.Err()

		case ev, ok := <-d.Events():
			if !ok || ev.Kind == EventCancel {
				d.Dismiss()
				return Anonymous, "", nil
			}

			switch {
			case ev.Kind == EventSecondary && flow == FlowPassword:
				return Anonymous, FlowOwnerOnly, nil
			case ev.Kind == EventSecondary && flow == FlowOwnerOnly:
				return Anonymous, FlowPassword, nil

			case flow == FlowLoggedIn && (ev.Kind == EventLogout || ev.Kind == EventSubmit):
				if err := c.Logout(ctx); err != nil {
					c.logger.Warn("logout of %s: %v", id, err)
					d.ShowError(c.messages.LogoutFailed)
					continue
				}
				d.Dismiss()
				return Anonymous, "", nil

			case (flow == FlowPassword || flow == FlowOwnerOnly) && ev.Kind == EventSubmit:
				got, err := c.submitCredentials(ctx, flow, ev.Fields)
				if err != nil {
					d.ShowError(c.errorText(err))
					continue
				}
				d.Dismiss()
				return got, "", nil

			case flow == FlowDelegated && ev.Kind == EventSubmit:
				got, cancelled, err := c.authorize(ctx, d)
				if cancelled {
					d.Dismiss()
					return Anonymous, "", err
				}
				if err != nil {
					d.ShowError(c.errorText(err))
					continue
				}
				d.Dismiss()
				return got, "", nil

			default:
				c.logger.Debug("ignoring %s event in %s flow", ev.Kind, flow)
			}
		}
	}
}

// submitCredentials posts the typed credentials. A rejected login returns
// ErrInvalidCredentials.
func (c *Controller) submitCredentials(ctx context.Context, flow string, input map[string]string) (Identity, error) {
	fields := secure.NewFields()
	defer fields.Destroy()

	for _, f := range c.form(flow, Anonymous).Fields {
		fields.Set(f.Name, input[f.Name], f.Secret)
	}
	form, err := fields.Encode()
	if err != nil {
		return Anonymous, err
	}
	if c.remember {
		form.Set(RememberField, "on")
	}

	session, err := c.backend.Login(ctx, form)
	if err != nil {
		// Error pages may echo the posted form.
		c.logger.Debug("%s login failed: %s", flow, logging.Redact(err.Error(), fields.Secrets()))
		return Anonymous, err
	}
	if !session.LoggedIn {
		return Anonymous, wberrors.ErrInvalidCredentials
	}
	return Identity(session.Username), nil
}

// authorize opens the authorization page and waits for the user to close it.
// cancelled is true when the dialog was cancelled or ctx ended meanwhile.
func (c *Controller) authorize(ctx context.Context, d *Dialog) (id Identity, cancelled bool, err error) {
	if c.window == nil {
		return Anonymous, false, errors.New("no browser available for delegated authorization")
	}

	closed := make(chan struct{})
	watch, err := c.window.Open(ctx, c.backend.AuthorizeURL(), func() { close(closed) })
	if err != nil {
		return Anonymous, false, err
	}
	defer watch.Cancel()

	for {
		select {
		case <-ctx.Done():
			return Anonymous, true, ctx.Err()
		case ev, ok := <-d.Events():
			if !ok || ev.Kind == EventCancel {
				return Anonymous, true, nil
			}
		case <-closed:
			session, err := c.backend.Session(ctx)
			if err != nil {
				return Anonymous, false, err
			}
			if !session.LoggedIn {
				return Anonymous, false, errAuthorizationIncomplete
			}
			return Identity(session.Username), false, nil
		}
	}
}

var errAuthorizationIncomplete = errors.New("authorization incomplete")

func (c *Controller) errorText(err error) string {
	switch {
	case errors.Is(err, wberrors.ErrInvalidCredentials):
		return c.messages.InvalidCredentials
	case errors.Is(err, errAuthorizationIncomplete):
		return c.messages.AuthorizationFailed
	case errors.Is(err, wberrors.ErrTransport):
		return c.messages.Unreachable
	default:
		return err.Error()
	}
}

func (c *Controller) record(flow string, id Identity, err error) {
	switch {
	case err != nil:
		c.metrics.RecordLogin(flow, "error")
	case flow == FlowLoggedIn && id.IsAnonymous():
		c.metrics.RecordLogin(flow, "closed")
	case id.IsAnonymous():
		c.metrics.RecordLogin(flow, "cancelled")
	default:
		c.metrics.RecordLogin(flow, "success")
	}
}

func (c *Controller) form(flow string, id Identity) Form {
	m := c.messages
	cancel := Action{Kind: EventCancel, Label: m.Cancel}

	switch flow {
	case FlowLoggedIn:
		text := map[string]string{"logged-in-as": m.LoggedInAs, "username": string(id)}
		if c.profile != nil {
			if link := c.profile(string(id)); link != "" {
				text["profile-link"] = link
				text["profile-label"] = m.ProfileLink
			}
		}
		return Form{
			Template: TemplateLoggedIn,
			Title:    m.LoggedInTitle,
			Text:     text,
			Actions:  []Action{{Kind: EventLogout, Label: m.LogOut}, cancel},
		}

	case FlowOwnerOnly:
		return Form{
			Template: TemplateOwnerOnly,
			Title:    m.LoginTitle,
			Fields: []Field{
				{Name: cookies.ClientID, Label: m.ClientID},
				{Name: cookies.ClientSecret, Label: m.ClientSecret, Secret: true},
				{Name: cookies.AccessToken, Label: m.AccessToken, Secret: true},
				{Name: cookies.AccessSecret, Label: m.AccessSecret, Secret: true},
			},
			Actions: []Action{
				{Kind: EventSubmit, Label: m.LogIn},
				{Kind: EventSecondary, Label: m.UsePassword},
				cancel,
			},
		}

	case FlowDelegated:
		return Form{
			Template: TemplateDelegated,
			Title:    m.LoginTitle,
			Text:     map[string]string{"explain": m.DelegatedExplain},
			Actions:  []Action{{Kind: EventSubmit, Label: m.Authorize}, cancel},
		}

	default:
		return Form{
			Template: TemplatePassword,
			Title:    m.LoginTitle,
			Fields: []Field{
				{Name: cookies.Username, Label: m.Username},
				{Name: cookies.Password, Label: m.Password, Secret: true},
			},
			Actions: []Action{
				{Kind: EventSubmit, Label: m.LogIn},
				{Kind: EventSecondary, Label: m.UseOwnerOnly},
				cancel,
			},
		}
	}
}
