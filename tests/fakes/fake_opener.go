package fakes

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/systmms/wbctl/internal/login"
)

// FakeOpener opens FakeWindows. OnOpen runs for every window and may close
// it to simulate the user.
type FakeOpener struct {
	OnOpen  func(url string, w *FakeWindow)
	OpenErr error

	mu      sync.Mutex
	URLs    []string
	Windows []*FakeWindow
}

// Open implements login.Opener.
func (o *FakeOpener) Open(_ context.Context, url string) (login.Window, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	w := &FakeWindow{URL: url}

	o.mu.Lock()
	o.URLs = append(o.URLs, url)
	o.Windows = append(o.Windows, w)
	o.mu.Unlock()

	if o.OnOpen != nil {
		o.OnOpen(url, w)
	}
	return w, nil
}

// Opened returns the URLs opened so far.
func (o *FakeOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.URLs...)
}

// FakeWindow is closed by calling UserClose.
type FakeWindow struct {
	URL string

	userClosed atomic.Bool
	closeCalls atomic.Int32
	polls      atomic.Int32
	ClosedErr  error
}

// UserClose simulates the user closing the window.
func (w *FakeWindow) UserClose() {
	w.userClosed.Store(true)
}

// Closed implements login.Window.
func (w *FakeWindow) Closed(context.Context) (bool, error) {
	w.polls.Add(1)
	if w.ClosedErr != nil {
		return false, w.ClosedErr
	}
	return w.userClosed.Load(), nil
}

// Close implements login.Window.
func (w *FakeWindow) Close() error {
	w.closeCalls.Add(1)
	return nil
}

// Polls returns how often Closed was called.
func (w *FakeWindow) Polls() int {
	return int(w.polls.Load())
}

// CloseCalls returns how often Close was called.
func (w *FakeWindow) CloseCalls() int {
	return int(w.closeCalls.Load())
}
