package userconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveServerURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(EnvServerURL, "")

	got, err := ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, got)

	require.NoError(t, SetServerURL("api.hds.example/"))
	got, err = ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.hds.example", got)

	t.Setenv(EnvServerURL, "http://10.0.0.5:8080")
	got, err = ResolveServerURL("")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080", got)

	got, err = ResolveServerURL("http://localhost:9000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", got)
}

func TestSaveCreatesPrivateFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, Save(&UserConfig{ServerURL: "https://api.hds.example"}))

	info, err := os.Stat(filepath.Join(home, ".config", "conecte", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.hds.example", cfg.ServerURL)
}

func TestNormalizeURLRejectsEmpty(t *testing.T) {
	_, err := NormalizeURL("  ")
	assert.Error(t, err)
}
