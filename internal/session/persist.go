package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StorageKey names the persisted snapshot
const StorageKey = "hds-conecte-auth"

// Persisted is the part of the state written to disk. The account and its
// tokens are not part of it: sign-in state always comes from the backend.
type Persisted struct {
	CompanyInfo         CompanyInfo `json:"companyInfo"`
	PendingConfirmation string      `json:"pendingConfirmation,omitempty"`
	LastEmail           string      `json:"lastEmail,omitempty"`
}

func persistedFrom(s State) Persisted {
	return Persisted{
		CompanyInfo:         s.CompanyInfo,
		PendingConfirmation: s.PendingConfirmation,
		LastEmail:           s.LastEmail,
	}
}

// Persister loads and saves the snapshot
type Persister interface {
	// Load returns nil without error when nothing was saved yet
	Load() (*Persisted, error)
	Save(p Persisted) error
}

// FilePersister stores the snapshot as JSON in a single file
type FilePersister struct {
	Path string
}

// DefaultPath returns ~/.config/conecte/hds-conecte-auth.json
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "conecte", StorageKey+".json"), nil
}

func (f FilePersister) Load() (*Persisted, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session snapshot: %w", err)
	}

	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return &p, nil
}

func (f FilePersister) Save(p Persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("failed to replace session snapshot: %w", err)
	}
	return nil
}
