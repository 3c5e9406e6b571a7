// Package tui renders login dialogs and progress in the terminal.
package tui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/systmms/wbctl/internal/logging"
	"github.com/systmms/wbctl/internal/login"
)

// Presenter runs one bubbletea program per dialog. It also serves as the
// manifest fetch notifier, so busy indicators and alerts share a style.
type Presenter struct {
	in     io.Reader
	out    io.Writer
	logger *logging.Logger
	th     theme
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithInput reads keys from r instead of stdin.
func WithInput(r io.Reader) Option {
	return func(p *Presenter) {
		p.in = r
	}
}

// WithOutput renders to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(p *Presenter) {
		p.out = w
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Presenter) {
		p.logger = l.Named("tui")
	}
}

// New returns a presenter on stdin and stderr.
func New(opts ...Option) *Presenter {
	p := &Presenter{in: os.Stdin, out: os.Stderr, logger: logging.NewNop(), th: defaultTheme()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Presenter) program(m tea.Model) *tea.Program {
	return tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out))
}

// Present implements login.Presenter.
func (p *Presenter) Present(form login.Form) (login.Frame, error) {
	f := &frame{
		events: make(chan login.Event, 8),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	f.prog = p.program(newFormModel(form, f.emit))

	go func() {
		defer f.finish()
		if _, err := f.prog.Run(); err != nil {
			p.logger.Warn("dialog %q stopped: %v", form.Template, err)
		}
	}()
	return f, nil
}

// Busy implements login.Presenter and the fetch notifier. The returned
// function removes the indicator.
func (p *Presenter) Busy(message string) func() {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = p.th.Accent
	prog := p.program(busyModel{spinner: s, message: message, th: p.th})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := prog.Run(); err != nil {
			p.logger.Debug("busy indicator stopped: %v", err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			prog.Send(closeMsg{})
			<-done
		})
	}
}

// Alert prints a message that needs the user's attention.
func (p *Presenter) Alert(message string) {
	fmt.Fprintln(p.out, p.th.Alert.Render("⚠ "+message))
}

// frame is a running form program.
type frame struct {
	prog   *tea.Program
	events chan login.Event

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

func (f *frame) Events() <-chan login.Event {
	return f.events
}

func (f *frame) ShowError(message string) {
	f.prog.Send(errorMsg(message))
}

// Close quits the program and waits until the terminal is restored.
func (f *frame) Close() {
	f.prog.Send(closeMsg{})
	<-f.done
}

// emit delivers an event unless the frame already finished.
func (f *frame) emit(ev login.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.events <- ev:
	case <-f.stop:
	}
}

// finish closes the event channel once the program has exited. A program
// that dies on its own thereby reads as a cancelled dialog.
func (f *frame) finish() {
	f.stopOnce.Do(func() { close(f.stop) })
	f.mu.Lock()
	f.closed = true
	close(f.events)
	f.mu.Unlock()
	close(f.done)
}

type busyModel struct {
	spinner spinner.Model
	message string
	th      theme
	quit    bool
}

func (m busyModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m busyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case closeMsg:
		m.quit = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quit = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m busyModel) View() string {
	if m.quit {
		return ""
	}
	return m.spinner.View() + " " + m.th.Muted.Render(m.message) + "\n"
}
