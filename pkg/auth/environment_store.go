package auth

import (
	"os"
	"time"

	"postharvest/pkg/bluesky"
)

// Environment variables read by EnvironmentStore
const (
	EnvHandle      = "BLUESKY_HANDLE"
	EnvAppPassword = "BLUESKY_APP_PASSWORD"
	EnvService     = "BLUESKY_SERVICE"
)

// EnvironmentStore is a read-only CredentialStore backed by environment
// variables, for CI and containers
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. An empty handle matches it;
// any other handle must equal BLUESKY_HANDLE.
func (e *EnvironmentStore) Retrieve(handle string) (*Account, error) {
	envHandle := bluesky.NormalizeHandle(os.Getenv(EnvHandle))
	password := os.Getenv(EnvAppPassword)

	if envHandle == "" || password == "" {
		return nil, ErrCredentialsNotFound
	}
	if handle != "" && bluesky.NormalizeHandle(handle) != envHandle {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Handle:       envHandle,
		AppPassword:  password,
		Service:      os.Getenv(EnvService),
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(handle string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist for handle
func (e *EnvironmentStore) Exists(handle string) bool {
	_, err := e.Retrieve(handle)
	return err == nil
}
