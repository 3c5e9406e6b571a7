package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// FakeCSRFToken is the token handed out by FakeBackend.
const FakeCSRFToken = "fake-csrf-token"

// FakeBackend emulates the extension backend: the login, mode and authorize
// commands of the wikidata extension plus the core CSRF and preference commands.
//
// Example usage:
//
//	fb := NewFakeBackend(t)
//	fb.SetMode("local")
//	fb.AddUser("alice", "secret")
//	client, _ := backend.New(fb.URL())
type FakeBackend struct {
	Server *httptest.Server

	mu           sync.Mutex
	mode         string
	users        map[string]string    // username -> password
	ownerOnly    map[string]ownerOnly // access token -> consumer credentials
	oauth        map[string]string    // access token -> username
	session      string
	prefs        map[string]*string
	refuseLogout bool
	failMode     bool

	loginRequests []url.Values
	logoutCount   int
	sessionGets   int
	modeGets      int
	prefSets      map[string]int
}

type ownerOnly struct {
	clientID     string
	clientSecret string
	accessSecret string
	username     string
}

// NewFakeBackend starts a backend that is closed when the test ends.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		mode:      "local",
		users:     make(map[string]string),
		ownerOnly: make(map[string]ownerOnly),
		oauth:     make(map[string]string),
		prefs:     make(map[string]*string),
		prefSets:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/command/wikidata/login", fb.handleLogin)
	mux.HandleFunc("/command/wikidata/mode", fb.handleMode)
	mux.HandleFunc("/command/wikidata/authorize", fb.handleAuthorize)
	mux.HandleFunc("/command/core/get-csrf-token", fb.handleCSRF)
	mux.HandleFunc("/command/core/get-preference", fb.handleGetPreference)
	mux.HandleFunc("/command/core/set-preference", fb.handleSetPreference)

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the backend root with a trailing slash.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL + "/"
}

// SetMode sets the answer of the mode command ("local", "public", "hosted").
func (fb *FakeBackend) SetMode(mode string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.mode = mode
}

// FailMode makes the mode command answer 500.
func (fb *FakeBackend) FailMode(fail bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failMode = fail
}

// AddUser registers a username/password pair.
func (fb *FakeBackend) AddUser(username, password string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.users[username] = password
}

// AddOwnerOnlyConsumer registers an owner-only consumer credential set.
func (fb *FakeBackend) AddOwnerOnlyConsumer(clientID, clientSecret, accessToken, accessSecret, username string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.ownerOnly[accessToken] = ownerOnly{clientID, clientSecret, accessSecret, username}
}

// AddOAuthToken registers a delegated-authorization access token.
func (fb *FakeBackend) AddOAuthToken(accessToken, username string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.oauth[accessToken] = username
}

// SetSession forces the logged in user ("" logs out).
func (fb *FakeBackend) SetSession(username string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.session = username
}

// RefuseLogout keeps the session alive on logout requests.
func (fb *FakeBackend) RefuseLogout(refuse bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.refuseLogout = refuse
}

// SetPreference stores a raw preference value.
func (fb *FakeBackend) SetPreference(name, value string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.prefs[name] = &value
}

// Preference returns a stored preference value.
func (fb *FakeBackend) Preference(name string) (string, bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	v, ok := fb.prefs[name]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// PreferenceWrites counts set-preference calls for name.
func (fb *FakeBackend) PreferenceWrites(name string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.prefSets[name]
}

// LoginRequests returns the credential forms posted to the login command.
func (fb *FakeBackend) LoginRequests() []url.Values {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]url.Values, len(fb.loginRequests))
	copy(out, fb.loginRequests)
	return out
}

// LogoutCount returns how many logout requests were received.
func (fb *FakeBackend) LogoutCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.logoutCount
}

// SessionGets returns how many times the session was queried.
func (fb *FakeBackend) SessionGets() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.sessionGets
}

// ModeGets returns how many times the mode was queried.
func (fb *FakeBackend) ModeGets() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.modeGets
}

func (fb *FakeBackend) handleCSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"token": FakeCSRFToken})
}

func (fb *FakeBackend) handleMode(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	fb.modeGets++
	mode, fail := fb.mode, fb.failMode
	fb.mu.Unlock()

	if fail {
		http.Error(w, "mode unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"mode": mode})
}

func (fb *FakeBackend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<script>window.close()</script>"))
}

func (fb *FakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		fb.mu.Lock()
		fb.sessionGets++
		fb.mu.Unlock()
		fb.respondSession(w)
		return
	}

	if err := r.ParseForm(); err != nil || r.PostForm.Get("csrf_token") != FakeCSRFToken {
		http.Error(w, `{"code":"error","message":"Missing or invalid csrf_token parameter"}`, http.StatusForbidden)
		return
	}
	form := r.PostForm

	if form.Get("logout") == "true" {
		fb.mu.Lock()
		fb.logoutCount++
		if !fb.refuseLogout {
			fb.session = ""
			for _, name := range credentialCookies {
				http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
			}
		}
		fb.mu.Unlock()
		fb.respondSession(w)
		return
	}

	creds := url.Values{}
	for k, v := range form {
		if k != "csrf_token" {
			creds[k] = v
		}
	}

	fb.mu.Lock()
	fb.loginRequests = append(fb.loginRequests, creds)
	remember := form.Get("remember-credentials") == "on"

	username, password := form.Get("wb-username"), form.Get("wb-password")
	clientID, clientSecret := form.Get("wb-client-id"), form.Get("wb-client-secret")
	accessToken, accessSecret := form.Get("wb-access-token"), form.Get("wb-access-secret")

	var set map[string]string
	switch {
	case username != "" && password != "":
		if pw, ok := fb.users[username]; ok && pw == password {
			fb.session = username
			set = map[string]string{"wb-username": username, "wb-password": password}
		}
	case clientID != "" && clientSecret != "" && accessToken != "" && accessSecret != "":
		if oo, ok := fb.ownerOnly[accessToken]; ok && oo.clientID == clientID &&
			oo.clientSecret == clientSecret && oo.accessSecret == accessSecret {
			fb.session = oo.username
			set = map[string]string{
				"wb-client-id": clientID, "wb-client-secret": clientSecret,
				"wb-access-token": accessToken, "wb-access-secret": accessSecret,
			}
		}
	case accessToken != "" && accessSecret != "":
		if user, ok := fb.oauth[accessToken]; ok {
			fb.session = user
			set = map[string]string{"wb-access-token": accessToken, "wb-access-secret": accessSecret}
		}
	}
	fb.mu.Unlock()

	if set != nil && remember {
		for name, value := range set {
			http.SetCookie(w, &http.Cookie{Name: name, Value: value, Path: "/", MaxAge: 365 * 24 * 3600})
		}
	}
	fb.respondSession(w)
}

func (fb *FakeBackend) respondSession(w http.ResponseWriter) {
	fb.mu.Lock()
	session := fb.session
	fb.mu.Unlock()

	body := map[string]interface{}{"logged_in": session != "", "username": nil}
	if session != "" {
		body["username"] = session
	}
	writeJSON(w, body)
}

func (fb *FakeBackend) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	fb.mu.Lock()
	v := fb.prefs[name]
	fb.mu.Unlock()

	if v == nil {
		writeJSON(w, map[string]interface{}{"value": nil})
		return
	}
	writeJSON(w, map[string]interface{}{"value": *v})
}

func (fb *FakeBackend) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("csrf_token") != FakeCSRFToken {
		http.Error(w, `{"code":"error"}`, http.StatusForbidden)
		return
	}
	name := r.URL.Query().Get("name")
	value := r.PostForm.Get("value")

	fb.mu.Lock()
	fb.prefs[name] = &value
	fb.prefSets[name]++
	fb.mu.Unlock()

	writeJSON(w, map[string]string{"code": "ok"})
}

var credentialCookies = []string{
	"wb-username", "wb-password", "wb-client-id", "wb-client-secret", "wb-access-token", "wb-access-secret",
}

func writeJSON(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// EncodeForm is a small helper for asserting on posted bodies.
func EncodeForm(values url.Values) string {
	return strings.TrimSpace(values.Encode())
}
