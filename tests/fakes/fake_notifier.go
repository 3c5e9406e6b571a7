package fakes

import "sync"

// FakeNotifier records busy indicators and alerts.
type FakeNotifier struct {
	mu           sync.Mutex
	BusyMessages []string
	Dismissed    int
	Alerts       []string
}

// Busy records the message; the returned function counts dismissals.
func (n *FakeNotifier) Busy(message string) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.BusyMessages = append(n.BusyMessages, message)
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.Dismissed++
	}
}

// Alert records the message.
func (n *FakeNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Alerts = append(n.Alerts, message)
}

// Snapshot returns copies of the recorded state.
func (n *FakeNotifier) Snapshot() (busy []string, dismissed int, alerts []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.BusyMessages...), n.Dismissed, append([]string(nil), n.Alerts...)
}
