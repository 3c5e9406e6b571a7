package login

import (
	"context"
	"sync"
	"time"

	"github.com/systmms/wbctl/internal/logging"
)

// Window is a browser window opened for delegated authorization.
type Window interface {
	// Closed reports whether the user closed the window.
	Closed(ctx context.Context) (bool, error)
	// Close closes the window if it is still open.
	Close() error
}

// Opener opens browser windows.
type Opener interface {
	Open(ctx context.Context, url string) (Window, error)
}

// AuthWindow opens the authorization page and reports when the user closes it.
type AuthWindow struct {
	opener   Opener
	interval time.Duration
	logger   *logging.Logger
}

// NewAuthWindow polls windows opened by opener every interval.
func NewAuthWindow(opener Opener, interval time.Duration, logger *logging.Logger) *AuthWindow {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AuthWindow{opener: opener, interval: interval, logger: logger.Named("authwindow")}
}

// Watch is the polling of one window.
type Watch struct {
	window Window
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Open opens url and polls until the window is closed, then calls onClosed
// exactly once. There is no timeout; Cancel stops polling without calling
// onClosed and closes the window.
func (a *AuthWindow) Open(ctx context.Context, url string, onClosed func()) (*Watch, error) {
	win, err := a.opener.Open(ctx, url)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	w := &Watch{window: win, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				closed, err := win.Closed(pollCtx)
				if pollCtx.Err() != nil {
					return
				}
				if err != nil {
					// A window we can no longer inspect is gone.
					a.logger.Debug("treating window as closed: %v", err)
					closed = true
				}
				if closed {
					ticker.Stop()
					if onClosed != nil {
						onClosed()
					}
					return
				}
			}
		}
	}()

	return w, nil
}

// Cancel stops polling and closes the window. It waits for the poller to
// exit and is safe to call more than once.
func (w *Watch) Cancel() {
	w.once.Do(func() {
		w.cancel()
		<-w.done
		_ = w.window.Close()
	})
}

// Done is closed when polling has stopped.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}
