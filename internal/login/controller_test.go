package login_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/cookies"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/login"
	"github.com/systmms/wbctl/tests/fakes"
	"github.com/systmms/wbctl/tests/testutil"
)

type harness struct {
	fb        *testutil.FakeBackend
	client    *backend.Client
	presenter *fakes.FakePresenter
	opener    *fakes.FakeOpener
	ctrl      *login.Controller

	mu     sync.Mutex
	depths []int
}

// newHarness wires a controller to a fake backend. script plays the user.
func newHarness(t *testing.T, mode string, script func(h *harness, form login.Form, frame *fakes.FakeFrame)) *harness {
	t.Helper()

	h := &harness{fb: testutil.NewFakeBackend(t), opener: &fakes.FakeOpener{}}
	h.fb.SetMode(mode)
	h.client = newBackendClient(t, h.fb)

	h.presenter = &fakes.FakePresenter{OnPresent: func(form login.Form, frame *fakes.FakeFrame) {
		h.mu.Lock()
		h.depths = append(h.depths, h.ctrl.Depth())
		h.mu.Unlock()
		if script != nil {
			script(h, form, frame)
		}
	}}

	silent := login.NewSilentLogin(h.client, cookies.JarStore{Jar: h.client.Jar(), URL: h.client.BaseURL()}, nil)
	h.ctrl = login.NewController(h.client, silent, h.presenter,
		login.WithAuthWindow(login.NewAuthWindow(h.opener, 5*time.Millisecond, nil)),
		login.WithProfileURL(func(u string) string { return "https://wiki.example/wiki/User:" + u }),
	)
	return h
}

func (h *harness) depthsAtPresent() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.depths...)
}

func TestDisplay_LocalPasswordSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.Send(login.EventSubmit, map[string]string{
			cookies.Username: "alice",
			cookies.Password: "secret",
		})
	})
	h.fb.AddUser("alice", "secret")

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("alice"), id)

	assert.Equal(t, []string{login.TemplatePassword}, h.presenter.Templates())
	assert.True(t, h.presenter.Last().IsClosed())
	assert.Empty(t, h.presenter.Last().Errors())
	assert.Equal(t, 0, h.ctrl.Depth())
	assert.Empty(t, h.opener.Opened())

	reqs := h.fb.LoginRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "alice", reqs[0].Get(cookies.Username))
	assert.Equal(t, "on", reqs[0].Get(login.RememberField))

	// The backend handed out credential cookies for the next silent login.
	v, ok := cookies.JarStore{Jar: h.client.Jar(), URL: h.client.BaseURL()}.Value(cookies.Username)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
}

func TestDisplay_InvalidCredentialsKeepFormOpen(t *testing.T) {
	t.Parallel()

	var openAtError bool
	h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.OnError = func(f *fakes.FakeFrame, msg string) {
			openAtError = !f.IsClosed() && h.ctrl.Depth() == 1
			if len(f.Errors()) == 1 {
				f.Send(login.EventSubmit, map[string]string{cookies.Username: "alice", cookies.Password: "secret"})
			}
		}
		frame.Send(login.EventSubmit, map[string]string{cookies.Username: "alice", cookies.Password: "wrong"})
	})
	h.fb.AddUser("alice", "secret")

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("alice"), id)

	frame := h.presenter.Last()
	assert.Equal(t, []string{login.DefaultMessages().InvalidCredentials}, frame.Errors())
	assert.True(t, openAtError)
	assert.Len(t, h.presenter.Frames, 1, "the same form is re-shown")
	assert.Len(t, h.fb.LoginRequests(), 2)
}

func TestDisplay_CancelReturnsAnonymous(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"local", "public"} {
		mode := mode
		t.Run(mode, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, mode, func(h *harness, form login.Form, frame *fakes.FakeFrame) {
				frame.Send(login.EventCancel, nil)
			})

			id, err := h.ctrl.Display(context.Background(), login.Anonymous)
			require.NoError(t, err)
			assert.Equal(t, login.Anonymous, id)
			assert.True(t, h.presenter.Last().IsClosed())
			assert.Equal(t, 0, h.ctrl.Depth())
			assert.Empty(t, h.fb.LoginRequests())
		})
	}
}

func TestDisplay_HostedNeverShowsPassword(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "public", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.Send(login.EventSubmit, nil)
	})
	h.opener.OnOpen = func(url string, w *fakes.FakeWindow) {
		h.fb.SetSession("carol")
		w.UserClose()
	}

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("carol"), id)

	assert.Equal(t, []string{login.TemplateDelegated}, h.presenter.Templates())
	assert.Equal(t, []string{h.client.AuthorizeURL()}, h.opener.Opened())
	assert.True(t, h.presenter.Last().IsClosed())
	assert.Empty(t, h.fb.LoginRequests())
}

func TestDisplay_DelegatedClosedWithoutLogin(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "public", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.OnError = func(f *fakes.FakeFrame, msg string) {
			f.Send(login.EventCancel, nil)
		}
		frame.Send(login.EventSubmit, nil)
	})
	h.opener.OnOpen = func(url string, w *fakes.FakeWindow) { w.UserClose() }

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Anonymous, id)
	assert.Equal(t, []string{login.DefaultMessages().AuthorizationFailed}, h.presenter.Last().Errors())
	assert.True(t, h.presenter.Last().IsClosed())
}

func TestDisplay_DelegatedCancelWhileWaiting(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "public", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.Send(login.EventSubmit, nil)
	})
	h.opener.OnOpen = func(url string, w *fakes.FakeWindow) {
		// The user gives up without closing the browser window.
		h.presenter.Last().Send(login.EventCancel, nil)
	}

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Anonymous, id)
	require.Len(t, h.opener.Windows, 1)
	assert.Equal(t, 1, h.opener.Windows[0].CloseCalls(), "abandoned window is closed")
}

func TestDisplay_SwitchingFlowsNeverStacks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		switch len(h.presenter.Frames) {
		case 1, 3:
			frame.Send(login.EventSecondary, nil)
		case 2:
			require.Equal(t, login.TemplateOwnerOnly, form.Template)
			frame.Send(login.EventSecondary, nil)
		default:
			require.Equal(t, login.TemplateOwnerOnly, form.Template)
			frame.Send(login.EventSubmit, map[string]string{
				cookies.ClientID:     "cid",
				cookies.ClientSecret: "cs",
				cookies.AccessToken:  "at",
				cookies.AccessSecret: "as",
			})
		}
	})
	h.fb.AddOwnerOnlyConsumer("cid", "cs", "at", "as", "bot")

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("bot"), id)

	assert.Equal(t, []string{
		login.TemplatePassword, login.TemplateOwnerOnly, login.TemplatePassword, login.TemplateOwnerOnly,
	}, h.presenter.Templates())
	assert.Equal(t, []int{0, 0, 0, 0}, h.depthsAtPresent())
	for _, f := range h.presenter.Frames {
		assert.True(t, f.IsClosed())
	}
	assert.Equal(t, 0, h.ctrl.Depth())
}

func TestDisplay_SilentLoginSkipsDialogs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "local", nil)
	h.fb.AddUser("alice", "secret")
	h.client.Jar().SetCookies(h.client.BaseURL(), []*http.Cookie{
		{Name: cookies.Username, Value: "alice", Path: "/"},
		{Name: cookies.Password, Value: "secret", Path: "/"},
	})

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("alice"), id)
	assert.Empty(t, h.presenter.Frames)
	assert.Equal(t, 1, h.fb.ModeGets(), "mode is queried once per resolution")
}

func TestDisplay_ModeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "local", nil)
	h.fb.FailMode(true)

	id, err := h.ctrl.Display(context.Background(), login.Anonymous)
	require.Error(t, err)
	assert.True(t, errors.Is(err, wberrors.ErrTransport))
	assert.Equal(t, login.Anonymous, id)
	assert.Empty(t, h.presenter.Frames)
}

func TestDisplay_ContextCancelledWhileOpen(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		cancel()
	})

	id, err := h.ctrl.Display(ctx, login.Anonymous)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, login.Anonymous, id)
	assert.Equal(t, 0, h.ctrl.Depth())
}

func TestLoggedInView(t *testing.T) {
	t.Parallel()

	t.Run("cancel_keeps_session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
			frame.Send(login.EventCancel, nil)
		})
		h.fb.SetSession("alice")

		id, err := h.ctrl.Display(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, login.Anonymous, id)
		assert.Zero(t, h.fb.LogoutCount())

		session, err := h.client.Session(context.Background())
		require.NoError(t, err)
		assert.True(t, session.LoggedIn)
	})

	t.Run("logout_confirmed", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
			assert.Equal(t, "alice", form.Text["username"])
			assert.Equal(t, "https://wiki.example/wiki/User:alice", form.Text["profile-link"])
			frame.Send(login.EventLogout, nil)
		})
		h.fb.SetSession("alice")

		id, err := h.ctrl.Display(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, login.Anonymous, id)
		assert.Equal(t, 1, h.fb.LogoutCount())
		assert.True(t, h.presenter.Last().IsClosed())
	})

	t.Run("logout_refused_keeps_dialog", func(t *testing.T) {
		t.Parallel()
		var closedAtError bool
		h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
			frame.OnError = func(f *fakes.FakeFrame, msg string) {
				closedAtError = f.IsClosed()
				f.Send(login.EventCancel, nil)
			}
			frame.Send(login.EventLogout, nil)
		})
		h.fb.SetSession("alice")
		h.fb.RefuseLogout(true)

		id, err := h.ctrl.Display(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, login.Anonymous, id)
		assert.False(t, closedAtError)
		assert.Equal(t, []string{login.DefaultMessages().LogoutFailed}, h.presenter.Last().Errors())
		assert.Equal(t, 1, h.fb.LogoutCount())
	})
}

func TestEnsureLoggedIn(t *testing.T) {
	t.Parallel()

	t.Run("existing_session", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", nil)
		h.fb.SetSession("alice")

		id, err := h.ctrl.EnsureLoggedIn(context.Background())
		require.NoError(t, err)
		assert.Equal(t, login.Identity("alice"), id)
		assert.Empty(t, h.presenter.Frames)
		assert.Zero(t, h.fb.ModeGets())

		// The busy indicator is only shown for the first session query.
		_, err = h.ctrl.EnsureLoggedIn(context.Background())
		require.NoError(t, err)
		assert.Len(t, h.presenter.Busies, 1)
		assert.Equal(t, 1, h.presenter.Idle)
		assert.Equal(t, 2, h.fb.SessionGets())
	})

	t.Run("no_session_runs_flow", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
			frame.Send(login.EventSubmit, map[string]string{cookies.Username: "alice", cookies.Password: "secret"})
		})
		h.fb.AddUser("alice", "secret")

		id, err := h.ctrl.EnsureLoggedIn(context.Background())
		require.NoError(t, err)
		assert.Equal(t, login.Identity("alice"), id)
		assert.Equal(t, []string{login.TemplatePassword}, h.presenter.Templates())
	})
}

func TestManage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "local", func(h *harness, form login.Form, frame *fakes.FakeFrame) {
		frame.Send(login.EventCancel, nil)
	})
	h.fb.SetSession("alice")

	id, err := h.ctrl.Manage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, login.Anonymous, id)
	assert.Equal(t, []string{login.TemplateLoggedIn}, h.presenter.Templates())
}

func TestLogout(t *testing.T) {
	t.Parallel()

	t.Run("confirmed", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", nil)
		h.fb.SetSession("alice")
		require.NoError(t, h.ctrl.Logout(context.Background()))
	})

	t.Run("refused", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "local", nil)
		h.fb.SetSession("alice")
		h.fb.RefuseLogout(true)
		err := h.ctrl.Logout(context.Background())
		assert.True(t, errors.Is(err, wberrors.ErrLogoutNotConfirmed))
	})
}

func TestDisplay_CredentialsNeverLogged(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	fb.SetMode("local")
	fb.AddUser("alice", "correct-horse")
	client := newBackendClient(t, fb)
	logs := testutil.NewTestLoggerWithDebug(t, true)

	presenter := &fakes.FakePresenter{OnPresent: func(form login.Form, frame *fakes.FakeFrame) {
		frame.OnError = func(f *fakes.FakeFrame, msg string) {
			f.Send(login.EventSubmit, map[string]string{cookies.Username: "alice", cookies.Password: "correct-horse"})
		}
		frame.Send(login.EventSubmit, map[string]string{cookies.Username: "alice", cookies.Password: "battery-staple"})
	}}
	ctrl := login.NewController(client, nil, presenter, login.WithLogger(logs.Logger))

	id, err := ctrl.Display(context.Background(), login.Anonymous)
	require.NoError(t, err)
	assert.Equal(t, login.Identity("alice"), id)

	testutil.AssertNoSecretLeak(t, logs.GetOutput(), []string{"correct-horse", "battery-staple"})
}
