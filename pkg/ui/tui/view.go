package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// visibleKeys caps the key list panel
const visibleKeys = 12

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	width := m.width - 2
	sections := []string{
		m.renderHeader(),
		m.renderProgress(width),
		lipgloss.JoinHorizontal(lipgloss.Top,
			m.renderKeysPanel(width/2),
			" ",
			m.renderLogsPanel(width-width/2-1),
		),
	}

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q quit • ? help"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader() string {
	status := m.spinner.View() + " collecting"
	switch {
	case m.finished && m.interrupted:
		status = warningStyle.Render("interrupted")
	case m.finished && m.runErr != nil:
		status = errorStyle.Render("failed")
	case m.finished:
		status = successStyle.Render("done")
	case m.stopping:
		status = warningStyle.Render("stopping…")
	}
	return headerStyle.Render(fmt.Sprintf("postharvest • %s (%s)", m.session, m.platform)) + "  " + status
}

func (m *Model) renderProgress(width int) string {
	title := titleStyle.Render(" PROGRESS ")

	bar := m.progress
	if w := width - 8; w > 10 && w < bar.Width {
		bar.Width = w
	}

	current := "waiting for first key"
	if active := m.ActiveKey(); active != nil {
		current = fmt.Sprintf("%s %s %s", m.spinner.View(), activeKeyStyle.Render(active.Key),
			doneKeyStyle.Render(formatDuration(m.now().Sub(active.StartTime))))
	}

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Keys:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", m.done, m.total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Records:"), statsValueStyle.Render(fmt.Sprintf("%d", m.records))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Failed:"), statsValueStyle.Render(fmt.Sprintf("%d", m.failed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(m.now().Sub(m.startTime)))),
	}
	if eta := m.ETA(); eta > 0 {
		stats = append(stats, fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(eta))))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		bar.ViewAs(m.Percent()),
		current,
		strings.Join(stats, "   "),
	)
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m *Model) renderKeysPanel(width int) string {
	title := titleStyle.Render(" KEYS ")

	start := len(m.keys) - visibleKeys
	if start < 0 {
		start = 0
	}

	var lines []string
	if start > 0 {
		lines = append(lines, doneKeyStyle.Render(fmt.Sprintf("… %d earlier", start)))
	}
	for _, item := range m.keys[start:] {
		detail := ""
		switch {
		case item.Count > 0:
			detail = fmt.Sprintf("%d", item.Count)
		case item.Error != "":
			detail = "error"
		}
		name := truncate(item.Key, width-16)
		lines = append(lines, fmt.Sprintf("%s %-*s %s", statusGlyph(item.Status), width-16, name, doneKeyStyle.Render(detail)))
	}
	if len(lines) == 0 {
		lines = append(lines, doneKeyStyle.Render("No keys yet"))
	}

	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOGS ")

	height := m.height - 14
	if height < 5 {
		height = 5
	}
	start := len(m.logMessages) - height
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		message := logMessageStyle.Render(truncate(log.Message, width-14))
		if log.Level != "" {
			message = lipgloss.NewStyle().Foreground(levelColor(log.Level)).Render(truncate(log.Message, width-14))
		}
		logs = append(logs, timestamp+" "+message)
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = doneKeyStyle.Render("No logs yet...")
	}
	return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
}

func (m *Model) renderHelp() string {
	help := `  q, ctrl+c   stop after saving buffered records (resume later)
  ctrl+l      clear logs
  ?           toggle this help

  ` + successStyle.Render("✓") + ` success   ` + warningStyle.Render("∅") + ` empty   ` + errorStyle.Render("✗") + ` failed`
	return panelStyle.Width(m.width - 2).Render(help)
}

func truncate(s string, n int) string {
	if n <= 1 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// formatDuration formats a duration as mm:ss or hh:mm:ss
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
