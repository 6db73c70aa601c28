package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "postharvest"
	keyringPrefix  = "bluesky_"
	// go-keyring cannot enumerate entries, so the handles are kept in one
	// extra item
	keyringIndex = "accounts_index"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore returns a store if the system keychain accepts writes
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Handle == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+account.Handle, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	handles, err := k.handles()
	if err != nil {
		return err
	}
	for _, h := range handles {
		if h == account.Handle {
			return nil
		}
	}
	return k.saveHandles(append(handles, account.Handle))
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(handle string) (*Account, error) {
	if handle == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+handle)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List returns the accounts named in the index that still resolve
func (k *KeyringStore) List() ([]*Account, error) {
	handles, err := k.handles()
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, 0, len(handles))
	for _, h := range handles {
		account, err := k.Retrieve(h)
		if err != nil {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(handle string) error {
	if handle == "" {
		return ErrInvalidCredentials
	}

	err := keyring.Delete(keyringService, keyringPrefix+handle)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	handles, err := k.handles()
	if err != nil {
		return err
	}
	kept := handles[:0]
	for _, h := range handles {
		if h != handle {
			kept = append(kept, h)
		}
	}
	return k.saveHandles(kept)
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(handle string) bool {
	if handle == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+handle)
	return err == nil
}

func (k *KeyringStore) handles() ([]string, error) {
	data, err := keyring.Get(keyringService, keyringIndex)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keyring index: %w", err)
	}

	var handles []string
	if err := json.Unmarshal([]byte(data), &handles); err != nil {
		return nil, fmt.Errorf("failed to parse keyring index: %w", err)
	}
	return handles, nil
}

func (k *KeyringStore) saveHandles(handles []string) error {
	if len(handles) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear keyring index: %w", err)
		}
		return nil
	}

	sort.Strings(handles)
	data, err := json.Marshal(handles)
	if err != nil {
		return fmt.Errorf("failed to marshal keyring index: %w", err)
	}
	if err := keyring.Set(keyringService, keyringIndex, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring index: %w", err)
	}
	return nil
}
