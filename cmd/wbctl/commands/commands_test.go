package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/wbctl/internal/config"
	wberrors "github.com/systmms/wbctl/internal/errors"
	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/manifest"
	"github.com/systmms/wbctl/internal/prefs"
	"github.com/systmms/wbctl/tests/testutil"
)

// testConfig points a non-interactive config at fb without touching the OS
// keyring.
func testConfig(t *testing.T, fb *testutil.FakeBackend) *config.Config {
	t.Helper()
	return testutil.NewTestConfig(t).WithBackend(fb.URL()).Build()
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewCommands(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Logger: logging.NewNop()}

	tests := []struct {
		cmd   *cobra.Command
		use   string
		flags []string
	}{
		{NewLoginCommand(cfg), "login", []string{"silent"}},
		{NewAccountCommand(cfg), "account", nil},
		{NewLogoutCommand(cfg), "logout", nil},
		{NewStatusCommand(cfg), "status", []string{"format"}},
		{NewWikibaseCommand(cfg), "wikibase", nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.use, tt.cmd.Use)
		assert.NotEmpty(t, tt.cmd.Short)
		for _, f := range tt.flags {
			assert.NotNil(t, tt.cmd.Flags().Lookup(f), "%s --%s", tt.use, f)
		}
	}

	var subs []string
	for _, c := range NewWikibaseCommand(cfg).Commands() {
		subs = append(subs, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "add", "remove", "select", "show", "refresh", "watch"}, subs)
}

func TestStatus_JSON(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	fb.SetMode("local")
	fb.SetSession("alice")

	out, err := execute(t, NewStatusCommand(testConfig(t, fb)), "--format", "json")
	require.NoError(t, err)

	var st Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, fb.URL(), st.Backend)
	assert.Equal(t, "local", st.Mode)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "alice", st.Username)
	assert.Equal(t, manifest.DefaultName, st.Wikibase)
	assert.Equal(t, "http://www.wikidata.org/entity/", st.EntityPrefix)
	assert.Equal(t, 1, st.Manifests)
}

func TestStatus_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer string
		want   string
	}{
		{"public", "hosted"},
		{"hosted", "hosted"},
		{"local", "local"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.answer, func(t *testing.T) {
			t.Parallel()
			fb := testutil.NewFakeBackend(t)
			fb.SetMode(tt.answer)

			out, err := execute(t, NewStatusCommand(testConfig(t, fb)))
			require.NoError(t, err)
			assert.Regexp(t, `Mode:\s+`+tt.want+`\n`, out)
			assert.NotContains(t, out, "public")
			assert.Regexp(t, `Logged in as:\s+-\n`, out)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("existing_session", func(t *testing.T) {
		t.Parallel()
		fb := testutil.NewFakeBackend(t)
		fb.SetSession("alice")

		out, err := execute(t, NewLoginCommand(testConfig(t, fb)))
		require.NoError(t, err)
		assert.Equal(t, "Logged in as alice\n", out)
	})

	t.Run("silent_without_cookies", func(t *testing.T) {
		t.Parallel()
		fb := testutil.NewFakeBackend(t)
		fb.SetMode("local")

		out, err := execute(t, NewLoginCommand(testConfig(t, fb)), "--silent")
		require.NoError(t, err)
		assert.Equal(t, "Not logged in\n", out)
		assert.Empty(t, fb.LoginRequests())
	})

	t.Run("non_interactive_needs_form", func(t *testing.T) {
		t.Parallel()
		fb := testutil.NewFakeBackend(t)
		fb.SetMode("local")

		_, err := execute(t, NewLoginCommand(testConfig(t, fb)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, wberrors.ErrCancelled))
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	fb.SetSession("alice")

	out, err := execute(t, NewLogoutCommand(testConfig(t, fb)))
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)
	assert.Equal(t, 1, fb.LogoutCount())

	fb.SetSession("bob")
	fb.RefuseLogout(true)
	_, err = execute(t, NewLogoutCommand(testConfig(t, fb)))
	assert.True(t, errors.Is(err, wberrors.ErrLogoutNotConfirmed))
}

func TestWikibase_Lifecycle(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	srv := testutil.ServeManifest(t, testutil.ManifestDoc("Test Wikibase", "https://test.example/wiki/"))
	cfg := testConfig(t, fb)

	out, err := execute(t, NewWikibaseCommand(cfg), "add", "--select", srv.URL+"/manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "Added Test Wikibase\n", out)

	selected, _ := fb.Preference(prefs.Selected)
	assert.Equal(t, "Test Wikibase", selected)
	stored, _ := fb.Preference(prefs.Manifests)
	list, invalid, err := manifest.ParseList([]byte(stored))
	require.NoError(t, err)
	assert.Empty(t, invalid)
	require.Len(t, list, 2)

	out, err = execute(t, NewWikibaseCommand(cfg), "list", "--format", "json")
	require.NoError(t, err)
	var rows []ManifestSummary
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	byName := map[string]ManifestSummary{}
	for _, r := range rows {
		byName[r.Name] = r
	}
	assert.True(t, byName["Test Wikibase"].Selected)
	assert.Equal(t, srv.URL+"/manifest.json", byName["Test Wikibase"].SourceURL)
	assert.NotNil(t, byName["Test Wikibase"].LastFetched)
	assert.False(t, byName[manifest.DefaultName].Selected)
	assert.Empty(t, byName[manifest.DefaultName].SourceURL)

	out, err = execute(t, NewWikibaseCommand(cfg), "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"https://test.example/wiki/"`)
	assert.Contains(t, out, srv.URL+"/manifest.json")

	out, err = execute(t, NewWikibaseCommand(cfg), "remove", "Test Wikibase")
	require.NoError(t, err)
	assert.Equal(t, "Removed Test Wikibase\n", out)

	selected, _ = fb.Preference(prefs.Selected)
	assert.Equal(t, manifest.DefaultName, selected, "removing the selection falls back to the default")

	out, err = execute(t, NewWikibaseCommand(cfg), "list")
	require.NoError(t, err)
	testutil.AssertLinesContain(t, out, []string{"NAME", "*  " + manifest.DefaultName})
	assert.NotContains(t, out, "Test Wikibase")
}

func TestWikibase_SelectAndShowUnknown(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	cfg := testConfig(t, fb)

	_, err := execute(t, NewWikibaseCommand(cfg), "select", "Nope")
	assert.True(t, errors.Is(err, wberrors.ErrUnknownWikibase))
	assert.Zero(t, fb.PreferenceWrites(prefs.Selected))

	_, err = execute(t, NewWikibaseCommand(cfg), "show", "Nope")
	assert.True(t, errors.Is(err, wberrors.ErrUnknownWikibase))

	_, err = execute(t, NewWikibaseCommand(cfg), "remove", "Nope")
	assert.True(t, errors.Is(err, wberrors.ErrUnknownWikibase))
}

func TestWikibase_AddUnreachable(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	cfg := testConfig(t, fb)

	_, err := execute(t, NewWikibaseCommand(cfg), "add", "http://127.0.0.1:1/manifest.json")
	testutil.AssertErrorContains(t, err, "127.0.0.1:1")
	assert.True(t, errors.Is(err, wberrors.ErrTransport))
	assert.Zero(t, fb.PreferenceWrites(prefs.Manifests))
}

func TestWikibase_ShowYAML(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	out, err := execute(t, NewWikibaseCommand(testConfig(t, fb)), "show", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Wikidata")
	assert.Contains(t, out, "site_iri: http://www.wikidata.org/entity/")
}

func TestWikibase_Refresh(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	srv := testutil.ServeManifest(t, testutil.ManifestDoc("Fresh", "https://fresh.example/wiki/"))

	stale := fmt.Sprintf(`[%s]`, strings.Replace(
		testutil.ManifestDoc("Fresh", "https://fresh.example/wiki/"),
		`"version": "1.0",`,
		fmt.Sprintf(`"version": "1.0", "custom": {"url": %q, "last_updated": 1000},`, srv.URL),
		1))
	fb.SetPreference(prefs.Manifests, stale)

	out, err := execute(t, NewWikibaseCommand(testConfig(t, fb)), "refresh")
	require.NoError(t, err)
	assert.Equal(t, "Loaded 0 manifests, refreshed 1\n", out)
	assert.Equal(t, 1, fb.PreferenceWrites(prefs.Manifests))
}

func TestWikibase_ListPersistsBackgroundRefresh(t *testing.T) {
	t.Parallel()

	fb := testutil.NewFakeBackend(t)
	srv := testutil.ServeManifest(t, testutil.ManifestDoc("Fresh", "https://new.example/wiki/"))

	stale := fmt.Sprintf(`[%s]`, strings.Replace(
		testutil.ManifestDoc("Fresh", "https://old.example/wiki/"),
		`"version": "1.0",`,
		fmt.Sprintf(`"version": "1.0", "custom": {"url": %q, "last_updated": 1000},`, srv.URL),
		1))
	fb.SetPreference(prefs.Manifests, stale)

	out, err := execute(t, NewWikibaseCommand(testConfig(t, fb)), "list")
	require.NoError(t, err)
	testutil.AssertLinesContain(t, out, []string{"Fresh"})

	// The refresh finished before the command returned.
	assert.Equal(t, 1, fb.PreferenceWrites(prefs.Manifests))
	persisted, ok := fb.Preference(prefs.Manifests)
	require.True(t, ok)
	assert.Contains(t, persisted, "https://new.example/wiki/")
}

func TestWriteFormatted_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := writeFormatted(&bytes.Buffer{}, "xml", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown output format")
}

func TestCompletion(t *testing.T) {
	t.Parallel()

	root := &cobra.Command{Use: "wbctl"}
	root.AddCommand(NewCompletionCommand(&config.Config{}))

	out, err := execute(t, root, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "wbctl")
}
