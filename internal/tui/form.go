package tui

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/systmms/wbctl/internal/login"
)

// Messages sent into a running form.
type (
	errorMsg string
	closeMsg struct{}
)

// formModel renders one login.Form. User actions are handed to emit; the
// form stays up until a closeMsg arrives.
type formModel struct {
	form    login.Form
	inputs  []textinput.Model
	focus   int
	spinner spinner.Model
	pending bool
	err     string
	closed  bool
	emit    func(login.Event)
	th      theme
}

func newFormModel(form login.Form, emit func(login.Event)) formModel {
	m := formModel{
		form:    form,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		emit:    emit,
		th:      defaultTheme(),
	}
	for _, f := range form.Fields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = f.Label
		in.CharLimit = 512
		in.Width = 40
		if f.Secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.inputs = append(m.inputs, in)
	}
	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
	m.spinner.Style = m.th.Accent
	return m
}

func (m formModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case closeMsg:
		m.closed = true
		return m, tea.Quit

	case errorMsg:
		m.err = string(msg)
		m.pending = false
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, m.fire(login.EventCancel)
		case "tab", "down":
			m.moveFocus(1)
			return m, nil
		case "shift+tab", "up":
			m.moveFocus(-1)
			return m, nil
		case "ctrl+o":
			if m.has(login.EventSecondary) {
				return m, m.fire(login.EventSecondary)
			}
			return m, nil
		case "ctrl+l":
			if m.has(login.EventLogout) {
				return m, m.fire(login.EventLogout)
			}
			return m, nil
		case "enter":
			if m.pending {
				return m, nil
			}
			if m.focus < len(m.inputs)-1 {
				m.moveFocus(1)
				return m, nil
			}
			kind := login.EventSubmit
			if len(m.form.Actions) > 0 {
				kind = m.form.Actions[0].Kind
			}
			m.pending = true
			m.err = ""
			return m, tea.Batch(m.fire(kind), m.spinner.Tick)
		}
	}

	if len(m.inputs) == 0 || m.pending {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *formModel) moveFocus(delta int) {
	if len(m.inputs) == 0 {
		return
	}
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focus].Focus()
}

func (m formModel) has(kind login.EventKind) bool {
	for _, a := range m.form.Actions {
		if a.Kind == kind {
			return true
		}
	}
	return false
}

// fire returns a command delivering an event outside the update loop.
func (m formModel) fire(kind login.EventKind) tea.Cmd {
	ev := login.Event{Kind: kind}
	if kind == login.EventSubmit {
		ev.Fields = m.values()
	}
	emit := m.emit
	return func() tea.Msg {
		if emit != nil {
			emit(ev)
		}
		return nil
	}
}

func (m formModel) values() map[string]string {
	out := make(map[string]string, len(m.inputs))
	for i, f := range m.form.Fields {
		out[f.Name] = m.inputs[i].Value()
	}
	return out
}

func (m formModel) View() string {
	if m.closed {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.th.Title.Render(m.form.Title))
	b.WriteString("\n")

	for _, line := range m.textLines() {
		b.WriteString("\n" + line)
	}
	if len(m.form.Text) > 0 {
		b.WriteString("\n")
	}

	for i, f := range m.form.Fields {
		label := m.th.Label.Render(f.Label)
		if i == m.focus {
			label = m.th.Accent.Render(m.th.Label.Render(f.Label))
		}
		b.WriteString("\n" + label + " " + m.inputs[i].View())
	}

	if m.err != "" {
		b.WriteString("\n\n" + m.th.Danger.Render(m.err))
	}
	if m.pending {
		b.WriteString("\n\n" + m.spinner.View())
	}
	b.WriteString("\n\n" + m.th.Muted.Render(m.help()))

	return m.th.Frame.Render(b.String()) + "\n"
}

// textLines lays out the form's free text. Known keys come first in a
// fixed order; anything else follows sorted by key.
func (m formModel) textLines() []string {
	text := m.form.Text
	if len(text) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var lines []string

	if as, ok := text["logged-in-as"]; ok {
		seen["logged-in-as"], seen["username"] = true, true
		lines = append(lines, as+" "+m.th.Accent.Render(text["username"]))
	}
	if link, ok := text["profile-link"]; ok {
		seen["profile-link"], seen["profile-label"] = true, true
		lines = append(lines, text["profile-label"]+": "+m.th.Muted.Render(link))
	}

	var rest []string
	for k := range text {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		lines = append(lines, text[k])
	}
	return lines
}

func (m formModel) help() string {
	var parts []string
	for i, a := range m.form.Actions {
		key := ""
		switch {
		case i == 0:
			key = "enter"
		case a.Kind == login.EventCancel:
			key = "esc"
		case a.Kind == login.EventSecondary:
			key = "ctrl+o"
		case a.Kind == login.EventLogout:
			key = "ctrl+l"
		}
		if key != "" {
			parts = append(parts, key+" "+strings.ToLower(a.Label))
		}
	}
	return strings.Join(parts, " • ")
}
