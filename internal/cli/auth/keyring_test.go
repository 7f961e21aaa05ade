package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/hds-conecte/conecte/internal/backend"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store := KeyringStore{ServerURL: "https://api.hds.example"}
	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	s := &backend.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "bearer",
		ExpiresAt:    1700000000,
		User:         &backend.User{ID: "u1", Email: "maria@hds.example"},
	}
	require.NoError(t, store.Save(s))

	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, s, got)

	// Sessions are kept per server
	other, err := KeyringStore{ServerURL: "http://localhost:8080"}.Load()
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeyringStoreIgnoresGarbledEntry(t *testing.T) {
	keyring.MockInit()

	store := KeyringStore{ServerURL: "https://api.hds.example"}
	require.NoError(t, keyring.Set(service, store.key(), "{oops"))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}
