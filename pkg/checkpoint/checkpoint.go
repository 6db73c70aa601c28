package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"postharvest/pkg/logger"
	"postharvest/pkg/models"
	"postharvest/pkg/storage"
)

// CurrentVersion is the checkpoint schema version written by this package
const CurrentVersion = 1

const fileSuffix = ".checkpoint.json"

// ErrSessionLocked is returned by AcquireLock when another run owns the session
var ErrSessionLocked = storage.ErrLocked

// KeyOutcome is the terminal result recorded for one key
type KeyOutcome struct {
	Status      models.KeyStatus `json:"status"`
	Count       int              `json:"count"`
	Error       string           `json:"error,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Checkpoint represents the progress of a batch session
type Checkpoint struct {
	SessionName   string                `json:"session_name"`
	Platform      string                `json:"platform"`
	CompletedKeys map[string]KeyOutcome `json:"completed_keys"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	Version       int                   `json:"version"`
}

// New returns an empty checkpoint for a session
func New(session, platform string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		SessionName:   session,
		Platform:      platform,
		CompletedKeys: make(map[string]KeyOutcome),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       CurrentVersion,
	}
}

// IsKeyComplete reports whether key has reached a terminal outcome
func (c *Checkpoint) IsKeyComplete(key string) bool {
	if c == nil {
		return false
	}
	outcome, ok := c.CompletedKeys[key]
	return ok && outcome.Status.Terminal()
}

// Outcome returns the recorded outcome for key
func (c *Checkpoint) Outcome(key string) (KeyOutcome, bool) {
	if c == nil {
		return KeyOutcome{}, false
	}
	outcome, ok := c.CompletedKeys[key]
	return outcome, ok
}

// Keys returns the completed keys sorted by name
func (c *Checkpoint) Keys() []string {
	keys := make([]string, 0, len(c.CompletedKeys))
	for k := range c.CompletedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Counts tallies outcomes by status
func (c *Checkpoint) Counts() map[models.KeyStatus]int {
	counts := make(map[models.KeyStatus]int)
	for _, outcome := range c.CompletedKeys {
		counts[outcome.Status]++
	}
	return counts
}

// Summary is a one-line view of a stored checkpoint
type Summary struct {
	SessionName string    `json:"session_name"`
	Platform    string    `json:"platform"`
	Succeeded   int       `json:"succeeded"`
	Empty       int       `json:"empty"`
	Failed      int       `json:"failed"`
	Records     int       `json:"records"`
	UpdatedAt   time.Time `json:"updated_at"`
	Path        string    `json:"path"`
}

// Manager handles checkpoint operations for every session under one directory
type Manager struct {
	dir    string
	logger logger.Logger
	mu     sync.Mutex
}

// NewManager creates a checkpoint manager rooted at dir
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		dir:    dir,
		logger: logger.OrDefault(log).WithField("component", "checkpoint"),
	}, nil
}

// Path returns the checkpoint file for a session
func (m *Manager) Path(session string) string {
	return filepath.Join(m.dir, storage.Canon(session)+fileSuffix)
}

func (m *Manager) backupPath(session string) string {
	return m.Path(session) + ".backup"
}

// Load reads a session checkpoint. A missing checkpoint returns nil, nil.
// If the primary file cannot be decoded the backup is tried before failing.
func (m *Manager) Load(session string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(session)
}

func (m *Manager) load(session string) (*Checkpoint, error) {
	path := m.Path(session)
	cp, err := readCheckpoint(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		backup, backupErr := readCheckpoint(m.backupPath(session))
		if backupErr != nil {
			return nil, err
		}
		m.logger.WarnWithFields("Checkpoint unreadable, using backup", map[string]interface{}{
			"session": session,
			"path":    path,
			"error":   err.Error(),
		})
		cp = backup
	}

	m.logger.DebugWithFields("Checkpoint loaded", map[string]interface{}{
		"session":        cp.SessionName,
		"completed_keys": len(cp.CompletedKeys),
		"updated_at":     cp.UpdatedAt,
	})

	return cp, nil
}

func readCheckpoint(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", filepath.Base(path), err)
	}
	if cp.Version > CurrentVersion {
		return nil, fmt.Errorf("checkpoint %s has version %d, newer than supported %d",
			filepath.Base(path), cp.Version, CurrentVersion)
	}
	if cp.CompletedKeys == nil {
		cp.CompletedKeys = make(map[string]KeyOutcome)
	}
	return &cp, nil
}

// Save writes the checkpoint atomically: temp file, fsync, rename
func (m *Manager) Save(session string, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(session, cp)
}

func (m *Manager) save(session string, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	if cp.SessionName == "" {
		cp.SessionName = session
	}
	if cp.Version == 0 {
		cp.Version = CurrentVersion
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()

	err := storage.WriteAtomic(m.Path(session), 0644, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cp)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"session":        session,
		"completed_keys": len(cp.CompletedKeys),
	})
	return nil
}

// MarkKeyComplete records a terminal outcome for key and persists the
// checkpoint before returning.
func (m *Manager) MarkKeyComplete(session, platform, key string, outcome KeyOutcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("cannot mark key %q complete with non-terminal status %q", key, outcome.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.load(session)
	if err != nil {
		return err
	}
	if cp == nil {
		cp = New(session, platform)
	}
	if outcome.CompletedAt.IsZero() {
		outcome.CompletedAt = time.Now().UTC()
	}
	cp.CompletedKeys[key] = outcome

	if err := m.save(session, cp); err != nil {
		return err
	}

	m.logger.InfoWithFields("Key checkpointed", map[string]interface{}{
		"session": session,
		"key":     key,
		"status":  string(outcome.Status),
		"count":   outcome.Count,
	})
	return nil
}

// IsKeyComplete reports whether key is terminal in the stored checkpoint
func (m *Manager) IsKeyComplete(session, key string) (bool, error) {
	cp, err := m.Load(session)
	if err != nil {
		return false, err
	}
	return cp.IsKeyComplete(key), nil
}

// ClearKey forgets the outcome of key so the next run retries it
func (m *Manager) ClearKey(session, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.load(session)
	if err != nil || cp == nil {
		return false, err
	}
	if _, ok := cp.CompletedKeys[key]; !ok {
		return false, nil
	}
	delete(cp.CompletedKeys, key)
	return true, m.save(session, cp)
}

// ClearFailed forgets every failed key and returns them sorted
func (m *Manager) ClearFailed(session string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.load(session)
	if err != nil || cp == nil {
		return nil, err
	}

	var cleared []string
	for key, outcome := range cp.CompletedKeys {
		if outcome.Status == models.KeyFailed {
			cleared = append(cleared, key)
			delete(cp.CompletedKeys, key)
		}
	}
	if len(cleared) == 0 {
		return nil, nil
	}
	sort.Strings(cleared)

	if err := m.save(session, cp); err != nil {
		return nil, err
	}

	m.logger.InfoWithFields("Failed keys cleared for retry", map[string]interface{}{
		"session": session,
		"keys":    cleared,
	})
	return cleared, nil
}

// Delete removes the checkpoint and its backup
func (m *Manager) Delete(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, path := range []string{m.Path(session), m.backupPath(session)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	}

	m.logger.InfoWithFields("Checkpoint deleted", map[string]interface{}{"session": session})
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists(session string) bool {
	_, err := os.Stat(m.Path(session))
	return err == nil
}

// Backup copies the current checkpoint beside itself. It returns the
// backup path, or "" when there is nothing to back up.
func (m *Manager) Backup(session string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Exists(session) {
		return "", nil
	}

	backupPath := m.backupPath(session)
	if err := storage.CopyFile(m.Path(session), backupPath); err != nil {
		return "", fmt.Errorf("failed to back up checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint backed up", map[string]interface{}{"path": backupPath})
	return backupPath, nil
}

// List summarises every checkpoint in the directory, most recent first
func (m *Manager) List() ([]Summary, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		cp, err := readCheckpoint(path)
		if err != nil {
			m.logger.WarnWithFields("Skipping unreadable checkpoint", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}

		s := Summary{
			SessionName: cp.SessionName,
			Platform:    cp.Platform,
			UpdatedAt:   cp.UpdatedAt,
			Path:        path,
		}
		for _, outcome := range cp.CompletedKeys {
			switch outcome.Status {
			case models.KeySucceeded:
				s.Succeeded++
				s.Records += outcome.Count
			case models.KeyEmpty:
				s.Empty++
			case models.KeyFailed:
				s.Failed++
			}
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// AcquireLock takes the single-writer lock for a session. The returned
// error wraps ErrSessionLocked when another run holds it.
func (m *Manager) AcquireLock(session string) (*storage.Lock, error) {
	lockDir := filepath.Join(m.dir, storage.Canon(session)+".lock")
	lock, err := storage.AcquireLock(lockDir)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", session, err)
	}
	return lock, nil
}
