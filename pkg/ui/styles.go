package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#00AFD7")
	colorSuccess = lipgloss.Color("#5FD75F")
	colorWarning = lipgloss.Color("#FFAF00")
	colorError   = lipgloss.Color("#FF5F5F")
	colorDim     = lipgloss.Color("#808080")
	colorValue   = lipgloss.Color("#FFD75F")

	titleStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorValue)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

// StatusStyle picks the style used for a key or merge status label
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "success", "merged":
		return successStyle
	case "empty", "partial", "pending", "in_progress":
		return warningStyle
	case "failed", "no_data":
		return errorStyle
	default:
		return valueStyle
	}
}
