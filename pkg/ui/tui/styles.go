package tui

import (
	"github.com/charmbracelet/lipgloss"
	"postharvest/pkg/models"
)

var (
	accent    = lipgloss.Color("#00AFD7")
	highlight = lipgloss.Color("#AF87FF")
	green     = lipgloss.Color("#5FD75F")
	yellow    = lipgloss.Color("#FFD75F")
	orange    = lipgloss.Color("#FFAF00")
	red       = lipgloss.Color("#FF5F5F")
	dimWhite  = lipgloss.Color("#A8A8A8")
	faint     = lipgloss.Color("#626262")

	headerStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#000000")).
			Bold(true).
			Padding(0, 1)

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(yellow)

	successStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(orange).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	activeKeyStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true)

	doneKeyStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	logTimestampStyle = lipgloss.NewStyle().
				Foreground(faint)

	logMessageStyle = lipgloss.NewStyle().
			Foreground(dimWhite)

	helpStyle = lipgloss.NewStyle().
			Foreground(faint).
			Padding(1, 0, 0, 1)
)

// statusGlyph returns the marker shown next to a key in the list
func statusGlyph(status models.KeyStatus) string {
	switch status {
	case models.KeySucceeded:
		return successStyle.Render("✓")
	case models.KeyEmpty:
		return warningStyle.Render("∅")
	case models.KeyFailed:
		return errorStyle.Render("✗")
	case models.KeyInProgress:
		return activeKeyStyle.Render("›")
	default:
		return doneKeyStyle.Render("·")
	}
}

// levelColor picks the log panel color for a level
func levelColor(level string) lipgloss.Color {
	switch level {
	case "ERROR":
		return red
	case "WARN":
		return orange
	case "SUCCESS":
		return green
	case "INFO":
		return accent
	default:
		return dimWhite
	}
}
