// Package auth keeps CLI sessions in the OS keychain.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/hds-conecte/conecte/internal/backend"
)

const service = "conecte-cli"

// KeyringStore is a backend.TokenStore holding one session per API URL
type KeyringStore struct {
	ServerURL string
}

var _ backend.TokenStore = KeyringStore{}

func (k KeyringStore) key() string {
	return fmt.Sprintf("session-%s", k.ServerURL)
}

// Load returns the stored session, or nil when there is none
func (k KeyringStore) Load() (*backend.Session, error) {
	raw, err := keyring.Get(service, k.key())
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s backend.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// A garbled entry is treated as signed out and replaced on next sign-in
		return nil, nil
	}
	return &s, nil
}

// Save persists s in the keychain
func (k KeyringStore) Save(s *backend.Session) error {
	if s == nil {
		return k.Clear()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := keyring.Set(service, k.key(), string(data)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the stored session
func (k KeyringStore) Clear() error {
	if err := keyring.Delete(service, k.key()); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
