package login

import (
	"sync"
)

// Templates name the forms a Presenter is asked to render.
const (
	TemplateLoggedIn  = "logged-in"
	TemplatePassword  = "password"
	TemplateOwnerOnly = "owner-only-consumer"
	TemplateDelegated = "delegated"
)

// EventKind is a user action on a form.
type EventKind int

// Form events.
const (
	EventSubmit EventKind = iota
	EventCancel
	// EventSecondary switches between the password and owner-only forms.
	EventSecondary
	EventLogout
)

func (k EventKind) String() string {
	switch k {
	case EventSubmit:
		return "submit"
	case EventCancel:
		return "cancel"
	case EventSecondary:
		return "secondary"
	case EventLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Event is delivered by a Frame when the user acts on it. Fields holds the
// input values on submit.
type Event struct {
	Kind   EventKind
	Fields map[string]string
}

// Field is one input of a form.
type Field struct {
	Name   string
	Label  string
	Secret bool
}

// Action is a button offered by a form.
type Action struct {
	Kind  EventKind
	Label string
}

// Form describes a modal dialog. Text maps element names of the template to
// display text.
type Form struct {
	Template string
	Title    string
	Text     map[string]string
	Fields   []Field
	Actions  []Action
}

// Frame is a form shown to the user.
type Frame interface {
	// Events yields user actions. It is closed if the frame goes away on
	// its own, which is treated as cancel.
	Events() <-chan Event
	// ShowError displays an inline error and keeps the form open.
	ShowError(message string)
	// Close removes the frame.
	Close()
}

// Presenter renders forms and busy indicators.
type Presenter interface {
	Present(form Form) (Frame, error)
	Busy(message string) (done func())
}

// DialogStack tracks the open dialogs of one controller.
type DialogStack struct {
	mu     sync.Mutex
	frames []*Dialog
}

// Dialog is one entry of a DialogStack.
type Dialog struct {
	stack *DialogStack
	frame Frame
	level int
}

// Open presents form and pushes it on the stack.
func (s *DialogStack) Open(p Presenter, form Form) (*Dialog, error) {
	frame, err := p.Present(form)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d := &Dialog{stack: s, frame: frame, level: len(s.frames)}
	s.frames = append(s.frames, d)
	return d, nil
}

// Depth is the number of open dialogs.
func (s *DialogStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Level is the depth of the stack below this dialog when it was opened.
func (d *Dialog) Level() int {
	return d.level
}

// Events yields the frame's user actions.
func (d *Dialog) Events() <-chan Event {
	return d.frame.Events()
}

// ShowError displays an inline error on the frame.
func (d *Dialog) ShowError(message string) {
	d.frame.ShowError(message)
}

// Dismiss closes this dialog and every dialog opened above it, leaving the
// stack at the depth it had before this dialog was opened. Dismissing twice
// is harmless.
func (d *Dialog) Dismiss() {
	s := d.stack
	s.mu.Lock()
	if d.level >= len(s.frames) || s.frames[d.level] != d {
		s.mu.Unlock()
		return
	}
	closing := append([]*Dialog(nil), s.frames[d.level:]...)
	s.frames = s.frames[:d.level]
	s.mu.Unlock()

	for i := len(closing) - 1; i >= 0; i-- {
		closing[i].frame.Close()
	}
}
