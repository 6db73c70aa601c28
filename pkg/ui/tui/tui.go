package tui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"postharvest/pkg/models"
)

// TUI runs the collection dashboard
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates a dashboard for session. cancel is invoked when the user
// quits before the collection returns.
func New(session, platform string, cancel context.CancelFunc, opts ...tea.ProgramOption) *TUI {
	model := NewModel(session, platform, cancel)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
	}
}

// Run blocks until the dashboard exits
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// KeyStarted matches the collector's OnKeyStart hook
func (t *TUI) KeyStarted(index, total int, key string) {
	t.Send(KeyStartMsg{Index: index, Total: total, Key: key})
}

// KeyDone matches the collector's OnKey hook
func (t *TUI) KeyDone(index, total int, result models.KeyResult) {
	t.Send(KeyDoneMsg{Index: index, Total: total, Result: result})
}

// Finish tells the dashboard the collection returned; it then exits
func (t *TUI) Finish(interrupted bool, err error) {
	t.Send(JobDoneMsg{Interrupted: interrupted, Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogWriter returns a writer that forwards each complete line to the log
// panel with terminal styling removed. Writes block until Run has started.
func (t *TUI) LogWriter() io.Writer {
	return &lineWriter{send: func(line string) { t.Send(LogMsg{Message: line}) }}
}

type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line; keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.send(ansi.Strip(strings.TrimRight(line, "\r\n")))
	}
	return len(p), nil
}
