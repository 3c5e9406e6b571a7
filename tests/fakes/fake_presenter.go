package fakes

import (
	"sync"

	"github.com/systmms/wbctl/internal/login"
)

// FakePresenter renders nothing. OnPresent scripts the user: it runs when a
// form is presented and may queue events on the frame.
type FakePresenter struct {
	OnPresent  func(form login.Form, frame *FakeFrame)
	PresentErr error

	mu     sync.Mutex
	Frames []*FakeFrame
	Busies []string
	Idle   int
}

// Present implements login.Presenter.
func (p *FakePresenter) Present(form login.Form) (login.Frame, error) {
	if p.PresentErr != nil {
		return nil, p.PresentErr
	}
	frame := &FakeFrame{Form: form, events: make(chan login.Event, 16)}

	p.mu.Lock()
	p.Frames = append(p.Frames, frame)
	p.mu.Unlock()

	if p.OnPresent != nil {
		p.OnPresent(form, frame)
	}
	return frame, nil
}

// Busy implements login.Presenter.
func (p *FakePresenter) Busy(message string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Busies = append(p.Busies, message)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.Idle++
	}
}

// Templates lists the templates presented so far, in order.
func (p *FakePresenter) Templates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Frames))
	for _, f := range p.Frames {
		out = append(out, f.Form.Template)
	}
	return out
}

// Last returns the most recently presented frame.
func (p *FakePresenter) Last() *FakeFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Frames) == 0 {
		return nil
	}
	return p.Frames[len(p.Frames)-1]
}

// FakeFrame is a scripted dialog. OnError runs after every inline error.
type FakeFrame struct {
	Form    login.Form
	OnError func(frame *FakeFrame, message string)

	events chan login.Event
	mu     sync.Mutex
	errors []string
	closed bool
}

// Events implements login.Frame.
func (f *FakeFrame) Events() <-chan login.Event {
	return f.events
}

// ShowError implements login.Frame.
func (f *FakeFrame) ShowError(message string) {
	f.mu.Lock()
	f.errors = append(f.errors, message)
	hook := f.OnError
	f.mu.Unlock()

	if hook != nil {
		hook(f, message)
	}
}

// Close implements login.Frame.
func (f *FakeFrame) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Send queues a user action.
func (f *FakeFrame) Send(kind login.EventKind, fields map[string]string) {
	f.events <- login.Event{Kind: kind, Fields: fields}
}

// Errors returns the inline errors shown so far.
func (f *FakeFrame) Errors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}

// IsClosed reports whether the frame was closed.
func (f *FakeFrame) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
