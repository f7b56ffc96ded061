package tui

import "github.com/charmbracelet/lipgloss"

// CursorMarker is the prefix shown on the selected contact row.
const CursorMarker = "▸ "

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})
	navStyle      = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "2", Dark: "10"})
	activeStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})
)

// boxStyle frames forms and dialogs.
func boxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"}).
		Padding(0, 1)
}

// message renders a status line in the success or error color.
func message(text string, ok bool) string {
	if text == "" {
		return ""
	}
	if ok {
		return successStyle.Render(text)
	}
	return errorStyle.Render(text)
}
