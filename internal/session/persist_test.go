package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hds-conecte/conecte/internal/roles"
)

func TestFilePersisterMissingFile(t *testing.T) {
	p := FilePersister{Path: filepath.Join(t.TempDir(), StorageKey+".json")}
	got, err := p.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFilePersisterRoundTrip(t *testing.T) {
	p := FilePersister{Path: filepath.Join(t.TempDir(), "nested", StorageKey+".json")}
	want := Persisted{
		CompanyInfo:         DefaultCompanyInfo,
		PendingConfirmation: "bia@hds.example",
		LastEmail:           "maria@hds.example",
	}
	require.NoError(t, p.Save(want))

	got, err := p.Load()
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestFilePersisterCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), StorageKey+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := FilePersister{Path: path}.Load()
	assert.Error(t, err)

	// An unreadable snapshot is ignored by the store
	store := New(newFakeBackend(), WithPersister(FilePersister{Path: path}))
	store.Load()
	assert.Equal(t, DefaultCompanyInfo, store.Snapshot().CompanyInfo)
}

func TestStoreIgnoresSignInFromOlderSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), StorageKey+".json")
	legacy := `{"user": {"id": "u1", "email": "dev@hds.example", "role": "dev-admin"}, "isAuthenticated": true, "lastEmail": "dev@hds.example"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	store := New(newFakeBackend(), WithPersister(FilePersister{Path: path}))
	store.Load()
	snap := store.Snapshot()
	assertSignedOut(t, snap)
	assert.Equal(t, "dev@hds.example", snap.LastEmail)
	assert.Equal(t, DefaultCompanyInfo, snap.CompanyInfo)
}

func TestStorePersistsWithoutTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), StorageKey+".json")
	fb := newFakeBackend()
	fb.addAccount("dev@hds.example", "s3nha-forte", "Dev", roles.DevAdmin)

	store := New(fb, WithPersister(FilePersister{Path: path}))
	require.True(t, store.SignInWithEmail(context.Background(), "dev@hds.example", "s3nha-forte").Success)
	name := "HDS Digital"
	require.True(t, store.UpdateCompanyInfo(CompanyInfoUpdate{Name: &name}).Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "HDS Digital")
	assert.NotContains(t, string(data), "isAuthenticated")
	assert.NotContains(t, string(data), `"role"`)
	assert.NotContains(t, string(data), "access-dev@hds.example")
	assert.NotContains(t, string(data), "refresh-dev@hds.example")

	// A fresh store picks up the local settings but not the sign-in
	next := New(newFakeBackend(), WithPersister(FilePersister{Path: path}))
	next.Load()
	snap := next.Snapshot()
	assert.Equal(t, "HDS Digital", snap.CompanyInfo.Name)
	assert.Equal(t, "dev@hds.example", snap.LastEmail)
	assert.False(t, snap.IsAuthenticated)
}
