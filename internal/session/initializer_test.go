package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/roles"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitReady(t *testing.T, init *Initializer) {
	t.Helper()
	select {
	case <-init.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("initializer never became ready")
	}
}

func TestInitializerRestoresBackendSession(t *testing.T) {
	fb := newFakeBackend()
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.Admin)
	fb.signIn("ana@hds.example")

	store := New(fb)
	init := NewInitializer(store, zerolog.Nop())
	stop := init.Start(context.Background())
	defer stop()

	waitReady(t, init)
	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, roles.Admin, snap.Role())
}

func TestInitializerWithoutSession(t *testing.T) {
	store := New(newFakeBackend())
	init := NewInitializer(store, zerolog.Nop())
	stop := init.Start(context.Background())
	defer stop()

	waitReady(t, init)
	assertSignedOut(t, store.Snapshot())
}

func TestInitializerFollowsAuthEvents(t *testing.T) {
	fb := newFakeBackend()
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.User)

	store := New(fb)
	init := NewInitializer(store, zerolog.Nop())
	stop := init.Start(context.Background())
	defer stop()
	waitReady(t, init)
	assert.False(t, store.Snapshot().IsAuthenticated)

	// A sign-in that bypassed the store, e.g. an OAuth redirect
	fb.signIn("ana@hds.example")
	fb.emit(backend.EventSignedIn)
	assert.Eventually(t, func() bool { return store.Snapshot().IsAuthenticated }, 5*time.Second, 10*time.Millisecond)

	fb.setRole("ana@hds.example", roles.DevAdmin)
	fb.emit(backend.EventUserUpdated)
	assert.Eventually(t, func() bool { return store.Snapshot().Role() == roles.DevAdmin }, 5*time.Second, 10*time.Millisecond)

	// Sign-out clears state without asking the backend
	before := fb.count("GetSession")
	fb.emit(backend.EventSignedOut)
	assert.Eventually(t, func() bool { return !store.Snapshot().IsAuthenticated }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, before, fb.count("GetSession"))
}

func TestInitializerStopCancelsInflightRefresh(t *testing.T) {
	fb := newFakeBackend()
	fb.blockGetSession = true

	store := New(fb)
	init := NewInitializer(store, zerolog.Nop())
	stop := init.Start(context.Background())

	select {
	case <-fb.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never started")
	}
	assert.True(t, store.Snapshot().IsLoading)

	stop()

	// Stop waits for the refresh, which settles the loading flag
	select {
	case <-init.Ready():
	default:
		t.Fatal("ready not closed after stop")
	}
	snap := store.Snapshot()
	assert.False(t, snap.IsLoading)
	assert.False(t, snap.IsAuthenticated)
	assert.Zero(t, fb.listenerCount())

	// Nothing reaches the store after stop
	changed := false
	unsubscribe := store.Subscribe(func(State) { changed = true })
	defer unsubscribe()
	fb.emit(backend.EventSignedIn)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, changed)

	stop()
}

func TestInitializerStopOnParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := New(newFakeBackend())
	init := NewInitializer(store, zerolog.Nop())
	stop := init.Start(ctx)

	waitReady(t, init)
	cancel()
	require.NotPanics(t, stop)
}
