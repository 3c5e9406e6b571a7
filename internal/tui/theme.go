package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	Title  lipgloss.Style
	Frame  lipgloss.Style
	Label  lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
	Alert  lipgloss.Style
	Danger lipgloss.Style
}

func defaultTheme() theme {
	accent := lipgloss.Color("#00AFAF")
	secondary := lipgloss.Color("#7D7D7D")
	alert := lipgloss.Color("#FFBF00")
	danger := lipgloss.Color("#FF0055")

	return theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),
		Frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1),
		Label: lipgloss.NewStyle().
			Width(16),
		Muted: lipgloss.NewStyle().
			Foreground(secondary),
		Accent: lipgloss.NewStyle().
			Foreground(accent),
		Alert: lipgloss.NewStyle().
			Foreground(alert),
		Danger: lipgloss.NewStyle().
			Foreground(danger),
	}
}
