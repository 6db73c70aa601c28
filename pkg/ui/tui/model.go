package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"postharvest/pkg/models"
)

// KeyItem is one key as the dashboard sees it
type KeyItem struct {
	Key       string
	Status    models.KeyStatus
	Count     int
	Error     string
	StartTime time.Time
	Took      time.Duration
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
}

// Model is the collection dashboard
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	session  string
	platform string

	keys    []*KeyItem
	byKey   map[string]*KeyItem
	total   int
	done    int
	records int
	failed  int

	startTime   time.Time
	finished    bool
	stopping    bool
	interrupted bool
	runErr      error

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	// cancel stops the collection when the user quits early
	cancel context.CancelFunc
	now    func() time.Time
}

// NewModel creates a dashboard for one session
func NewModel(session, platform string, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = activeKeyStyle

	return Model{
		spinner:        s,
		progress:       progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		session:        session,
		platform:       platform,
		byKey:          make(map[string]*KeyItem),
		startTime:      time.Now(),
		maxLogMessages: 50,
		cancel:         cancel,
		now:            time.Now,
	}
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// StartKey marks key as the one being collected
func (m *Model) StartKey(index, total int, key string) {
	m.total = total
	item, ok := m.byKey[key]
	if !ok {
		item = &KeyItem{Key: key}
		m.byKey[key] = item
		m.keys = append(m.keys, item)
	}
	item.Status = models.KeyInProgress
	item.StartTime = m.now()
}

// FinishKey records how a key ended
func (m *Model) FinishKey(index, total int, result models.KeyResult) {
	m.total = total
	item, ok := m.byKey[result.Key]
	if !ok {
		item = &KeyItem{Key: result.Key, StartTime: m.now()}
		m.byKey[result.Key] = item
		m.keys = append(m.keys, item)
	}
	item.Status = result.Status
	item.Count = result.Count
	item.Error = result.Error
	item.Took = m.now().Sub(item.StartTime)

	m.done = index
	m.records += result.Count
	if result.Status == models.KeyFailed {
		m.failed++
	}
}

// ActiveKey returns the key being collected, if any
func (m *Model) ActiveKey() *KeyItem {
	for _, item := range m.keys {
		if item.Status == models.KeyInProgress {
			return item
		}
	}
	return nil
}

// Percent is the share of this run's keys that have settled
func (m *Model) Percent() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

// ETA extrapolates from the average time per settled key
func (m *Model) ETA() time.Duration {
	if m.done == 0 || m.done >= m.total {
		return 0
	}
	perKey := m.now().Sub(m.startTime) / time.Duration(m.done)
	return perKey * time.Duration(m.total-m.done)
}

// AddLogMessage appends a log line, keeping the newest maxLogMessages
func (m *Model) AddLogMessage(level, message string) {
	message = strings.TrimRight(message, "\n")
	if message == "" {
		return
	}
	m.logMessages = append(m.logMessages, LogMessage{
		Time:    m.now(),
		Level:   level,
		Message: message,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Finished reports whether the collection has returned
func (m *Model) Finished() bool {
	return m.finished
}
