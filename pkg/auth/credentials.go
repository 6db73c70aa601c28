package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"postharvest/pkg/bluesky"
)

// Account is a saved Bluesky login
type Account struct {
	Handle       string    `json:"handle"`
	AppPassword  string    `json:"app_password"`
	Service      string    `json:"service,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for a given account
	Store(account *Account) error

	// Retrieve gets credentials for a specific handle
	Retrieve(handle string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific handle
	Delete(handle string) error

	// Exists checks if credentials exist for a handle
	Exists(handle string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager builds the usual chain: system keyring when available, then
// an encrypted file under configDir, then environment variables. An empty
// configDir selects the platform default.
func NewManager(configDir string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configDir = dir
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores uses exactly the given stores, in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store validates account and saves it in the first store that accepts it
func (m *Manager) Store(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}
	account.Handle = bluesky.NormalizeHandle(account.Handle)
	if account.Handle == "" {
		return errors.New("handle is required")
	}
	if !bluesky.IsValidHandle(account.Handle) {
		return fmt.Errorf("invalid handle %q", account.Handle)
	}
	if strings.TrimSpace(account.AppPassword) == "" {
		return errors.New("app password is required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(account)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(handle string) (*Account, error) {
	handle = bluesky.NormalizeHandle(handle)
	for _, store := range m.stores {
		if account, err := store.Retrieve(handle); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrCredentialsNotFound, handle)
}

// RetrieveDefault prefers environment credentials, then the first saved account
func (m *Manager) RetrieveDefault() (*Account, error) {
	for _, store := range m.stores {
		if envStore, ok := store.(*EnvironmentStore); ok {
			if account, err := envStore.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}

	accounts, err := m.List()
	if err == nil && len(accounts) > 0 {
		return accounts[0], nil
	}

	return nil, ErrCredentialsNotFound
}

// List returns all accounts across stores, sorted by handle. When a handle
// is held by several stores the most recently modified copy wins.
func (m *Manager) List() ([]*Account, error) {
	byHandle := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := byHandle[account.Handle]; !ok || account.LastModified.After(existing.LastModified) {
				byHandle[account.Handle] = account
			}
		}
	}

	result := make([]*Account, 0, len(byHandle))
	for _, account := range byHandle {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Handle < result[j].Handle })

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(handle string) error {
	handle = bluesky.NormalizeHandle(handle)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(handle); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	return fmt.Errorf("%w for %s", ErrCredentialsNotFound, handle)
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "postharvest")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "postharvest")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "postharvest")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "postharvest")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeAccount returns a copy of account with the password masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}

	return &Account{
		Handle:       account.Handle,
		AppPassword:  maskString(account.AppPassword),
		Service:      account.Service,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var appPasswordPattern = regexp.MustCompile(`^[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}-[a-z0-9]{4}$`)

// LooksLikeAppPassword reports whether s has the xxxx-xxxx-xxxx-xxxx shape
// Bluesky generates. Account passwords work for login too but should not be
// stored.
func LooksLikeAppPassword(s string) bool {
	return appPasswordPattern.MatchString(strings.TrimSpace(s))
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
