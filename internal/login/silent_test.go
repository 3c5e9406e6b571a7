package login_test

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/wbctl/internal/backend"
	"github.com/systmms/wbctl/internal/cookies"
	"github.com/systmms/wbctl/internal/login"
	"github.com/systmms/wbctl/tests/testutil"
)

func newBackendClient(t *testing.T, fb *testutil.FakeBackend) *backend.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client, err := backend.New(fb.URL(), backend.WithJar(jar))
	require.NoError(t, err)
	return client
}

func TestSilentLogin_IncompleteCookiesMakeNoRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mode    string
		cookies cookies.MapStore
	}{
		{"local_none", "local", cookies.MapStore{}},
		{"local_username_only", "local", cookies.MapStore{cookies.Username: "alice"}},
		{"local_password_only", "local", cookies.MapStore{cookies.Password: "secret"}},
		{"local_three_of_four", "local", cookies.MapStore{
			cookies.ClientID: "cid", cookies.ClientSecret: "cs", cookies.AccessToken: "at",
		}},
		{"local_only_access_pair", "local", cookies.MapStore{cookies.AccessToken: "at", cookies.AccessSecret: "as"}},
		{"hosted_none", "public", cookies.MapStore{}},
		{"hosted_token_only", "public", cookies.MapStore{cookies.AccessToken: "at"}},
		{"hosted_secret_only", "public", cookies.MapStore{cookies.AccessSecret: "as"}},
		{"hosted_password_pair", "public", cookies.MapStore{cookies.Username: "alice", cookies.Password: "secret"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := testutil.NewFakeBackend(t)
			fb.SetMode(tt.mode)
			s := login.NewSilentLogin(newBackendClient(t, fb), tt.cookies, nil)

			id, err := s.Attempt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, login.Anonymous, id)
			assert.Empty(t, fb.LoginRequests())
		})
	}
}

func TestSilentLogin_Requests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       string
		cookies    cookies.MapStore
		setup      func(fb *testutil.FakeBackend)
		wantFields []string
		wantID     login.Identity
	}{
		{
			name:       "local_password_pair",
			mode:       "local",
			cookies:    cookies.MapStore{cookies.Username: "alice", cookies.Password: "p@ss word"},
			setup:      func(fb *testutil.FakeBackend) { fb.AddUser("alice", "p@ss word") },
			wantFields: []string{cookies.Username, cookies.Password, login.RememberField},
			wantID:     "alice",
		},
		{
			name: "local_prefers_password_pair",
			mode: "local",
			cookies: cookies.MapStore{
				cookies.Username: "alice", cookies.Password: "secret",
				cookies.ClientID: "cid", cookies.ClientSecret: "cs",
				cookies.AccessToken: "at", cookies.AccessSecret: "as",
			},
			setup:      func(fb *testutil.FakeBackend) { fb.AddUser("alice", "secret") },
			wantFields: []string{cookies.Username, cookies.Password, login.RememberField},
			wantID:     "alice",
		},
		{
			name: "local_owner_only",
			mode: "local",
			cookies: cookies.MapStore{
				cookies.ClientID: "cid", cookies.ClientSecret: "cs",
				cookies.AccessToken: "at", cookies.AccessSecret: "as",
			},
			setup: func(fb *testutil.FakeBackend) { fb.AddOwnerOnlyConsumer("cid", "cs", "at", "as", "bot") },
			wantFields: []string{
				cookies.ClientID, cookies.ClientSecret, cookies.AccessToken, cookies.AccessSecret, login.RememberField,
			},
			wantID: "bot",
		},
		{
			name:       "hosted_access_pair",
			mode:       "public",
			cookies:    cookies.MapStore{cookies.AccessToken: "at", cookies.AccessSecret: "as", cookies.Username: "x", cookies.Password: "y"},
			setup:      func(fb *testutil.FakeBackend) { fb.AddOAuthToken("at", "carol") },
			wantFields: []string{cookies.AccessToken, cookies.AccessSecret, login.RememberField},
			wantID:     "carol",
		},
		{
			name:       "local_empty_password",
			mode:       "local",
			cookies:    cookies.MapStore{cookies.Username: "alice", cookies.Password: ""},
			setup:      func(fb *testutil.FakeBackend) { fb.AddUser("alice", "secret") },
			wantFields: []string{cookies.Username, cookies.Password, login.RememberField},
			wantID:     login.Anonymous,
		},
		{
			name:       "hosted_empty_access_secret",
			mode:       "public",
			cookies:    cookies.MapStore{cookies.AccessToken: "at", cookies.AccessSecret: ""},
			setup:      func(fb *testutil.FakeBackend) { fb.AddOAuthToken("at", "carol") },
			wantFields: []string{cookies.AccessToken, cookies.AccessSecret, login.RememberField},
			wantID:     login.Anonymous,
		},
		{
			name:       "rejected",
			mode:       "local",
			cookies:    cookies.MapStore{cookies.Username: "alice", cookies.Password: "stale"},
			setup:      func(fb *testutil.FakeBackend) { fb.AddUser("alice", "secret") },
			wantFields: []string{cookies.Username, cookies.Password, login.RememberField},
			wantID:     login.Anonymous,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := testutil.NewFakeBackend(t)
			fb.SetMode(tt.mode)
			tt.setup(fb)
			s := login.NewSilentLogin(newBackendClient(t, fb), tt.cookies, nil)

			id, err := s.Attempt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)

			reqs := fb.LoginRequests()
			require.Len(t, reqs, 1)
			var names []string
			for name := range reqs[0] {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.wantFields, names)
			assert.Equal(t, "on", reqs[0].Get(login.RememberField))
			for _, name := range tt.wantFields {
				if name == login.RememberField {
					continue
				}
				assert.Equal(t, tt.cookies[name], reqs[0].Get(name))
			}
		})
	}
}

func TestSilentLogin_ModeFailure(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	fb.FailMode(true)
	s := login.NewSilentLogin(newBackendClient(t, fb),
		cookies.MapStore{cookies.Username: "alice", cookies.Password: "secret"}, nil)

	id, err := s.Attempt(context.Background())
	require.Error(t, err)
	assert.Equal(t, login.Anonymous, id)
	assert.Empty(t, fb.LoginRequests())
}

func TestSilentLogin_ReadsQuotedJarCookies(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	fb.AddUser("alice", "secret")
	client := newBackendClient(t, fb)
	client.Jar().SetCookies(client.BaseURL(), []*http.Cookie{
		{Name: cookies.Username, Value: `"alice"`, Path: "/"},
		{Name: cookies.Password, Value: "secret", Path: "/"},
	})

	s := login.NewSilentLogin(client, cookies.JarStore{Jar: client.Jar(), URL: client.BaseURL()}, nil)
	id, err := s.Attempt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, login.Identity("alice"), id)
}
