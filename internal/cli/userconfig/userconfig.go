// Package userconfig stores CLI preferences in ~/.config/conecte/config.json.
package userconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName  = "conecte"
	configFileName = "config.json"

	// DefaultServerURL is used when nothing else names an API
	DefaultServerURL = "http://localhost:8080"

	// EnvServerURL overrides the configured API URL
	EnvServerURL = "CONECTE_URL"
)

// UserConfig represents the user's local configuration
type UserConfig struct {
	ServerURL string `json:"server_url,omitempty"`
}

// Dir returns the CLI config directory
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", configDirName), nil
}

// GetConfigPath returns the path to the user config file
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the user configuration file
func Load() (*UserConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &UserConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}
	return &cfg, nil
}

// Save writes the user configuration to a file
func Save(cfg *UserConfig) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}
	return nil
}

// SetServerURL validates and saves the API URL
func SetServerURL(raw string) error {
	u, err := NormalizeURL(raw)
	if err != nil {
		return err
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	cfg.ServerURL = u
	return Save(cfg)
}

// ResolveServerURL picks the API URL by priority:
// 1. the flag value
// 2. the CONECTE_URL environment variable
// 3. the saved config
// 4. DefaultServerURL
func ResolveServerURL(flag string) (string, error) {
	if flag != "" {
		return NormalizeURL(flag)
	}
	if env := os.Getenv(EnvServerURL); env != "" {
		return NormalizeURL(env)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	if cfg.ServerURL != "" {
		return cfg.ServerURL, nil
	}
	return DefaultServerURL, nil
}

// NormalizeURL adds a scheme when missing and drops trailing slashes
func NormalizeURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("server URL is empty")
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/"), nil
}
