package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"postharvest/pkg/models"
)

// KeyStartMsg is sent when the collector picks up a key
type KeyStartMsg struct {
	Index int
	Total int
	Key   string
}

// KeyDoneMsg is sent when a key settles
type KeyDoneMsg struct {
	Index  int
	Total  int
	Result models.KeyResult
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// JobDoneMsg is sent once the collection returns
type JobDoneMsg struct {
	Interrupted bool
	Err         error
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case KeyStartMsg:
		m.StartKey(msg.Index, msg.Total, msg.Key)
		return m, nil

	case KeyDoneMsg:
		m.FinishKey(msg.Index, msg.Total, msg.Result)
		switch msg.Result.Status {
		case models.KeyFailed:
			m.AddLogMessage("ERROR", msg.Result.Key+": "+msg.Result.Error)
		case models.KeySucceeded:
			m.AddLogMessage("SUCCESS", msg.Result.Key+" complete")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case JobDoneMsg:
		m.finished = true
		m.interrupted = msg.Interrupted
		m.runErr = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// handleKeyPress handles keyboard input. Quitting while keys are still
// being collected cancels the run; the dashboard exits once the collector
// has saved what it buffered.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.finished {
			return m, tea.Quit
		}
		if !m.stopping {
			m.stopping = true
			m.AddLogMessage("WARN", "Stopping: saving buffered records, progress is kept for resume")
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

// tickCmd refreshes elapsed time and ETA
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
