package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const lockOwnerFile = "owner.json"

// ErrLocked is returned when another process holds the lock
var ErrLocked = errors.New("already locked")

// LockOwner describes the process holding a lock
type LockOwner struct {
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname"`
	CreatedAt string `json:"created_at"`
}

// Lock is a held directory lock
type Lock struct {
	dir string
}

// AcquireLock creates dir as an exclusive lock and records the owner in it.
// A failure caused by an existing lock wraps ErrLocked.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock parent: %w", err)
	}

	if err := os.Mkdir(dir, 0755); err != nil {
		if os.IsExist(err) {
			if owner, readErr := ReadLockOwner(dir); readErr == nil && owner.PID > 0 {
				return nil, fmt.Errorf("%w: %s (pid=%d host=%s since %s)",
					ErrLocked, dir, owner.PID, owner.Hostname, owner.CreatedAt)
			}
			return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", dir, err)
	}

	owner := LockOwner{
		PID:       os.Getpid(),
		Hostname:  hostnameOrUnknown(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	err := WriteAtomic(filepath.Join(dir, lockOwnerFile), 0644, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(owner)
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to record lock owner: %w", err)
	}

	return &Lock{dir: dir}, nil
}

// ReadLockOwner returns the owner recorded in a lock directory
func ReadLockOwner(dir string) (*LockOwner, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockOwnerFile))
	if err != nil {
		return nil, err
	}
	var owner LockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, fmt.Errorf("failed to decode lock owner: %w", err)
	}
	return &owner, nil
}

// Release removes the lock. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.dir == "" {
		return nil
	}
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.dir, err)
	}
	l.dir = ""
	return nil
}

// Path returns the lock directory
func (l *Lock) Path() string {
	return l.dir
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
