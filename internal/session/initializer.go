package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hds-conecte/conecte/internal/backend"
)

// Initializer bootstraps a Store and keeps it in sync with backend auth events
type Initializer struct {
	store  *Store
	logger zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu             sync.Mutex
	pendingSignOut bool
	pendingRefresh bool
	kick           chan struct{}
}

// NewInitializer creates an initializer for store
func NewInitializer(store *Store, logger zerolog.Logger) *Initializer {
	return &Initializer{
		store:  store,
		logger: logger.With().Str("component", "session-init").Logger(),
		ready:  make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}
}

// Ready is closed once the first refresh has finished (or was cancelled)
func (i *Initializer) Ready() <-chan struct{} {
	return i.ready
}

// Start restores the persisted snapshot, subscribes to auth events and runs
// the first refresh. The returned stop func unsubscribes, cancels any refresh
// in flight and waits for it; the store is not touched after stop returns.
func (i *Initializer) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)

	i.store.Load()

	// Subscribing before the first refresh so no event is missed between them
	unsubscribe := i.store.backend.OnAuthStateChange(i.onAuthChange)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer i.markReady()

		i.store.RefreshSession(ctx)
		i.markReady()

		for {
			select {
			case <-ctx.Done():
				return
			case <-i.kick:
				i.drain(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			cancel()
			<-done
		})
	}
}

func (i *Initializer) markReady() {
	i.readyOnce.Do(func() { close(i.ready) })
}

// onAuthChange runs on the goroutine that changed the session and must not
// block; the work happens on the initializer goroutine
func (i *Initializer) onAuthChange(ch backend.AuthChange) {
	i.logger.Debug().Str("event", string(ch.Event)).Msg("Auth state changed")

	i.mu.Lock()
	if ch.Event == backend.EventSignedOut {
		i.pendingSignOut = true
	} else {
		i.pendingRefresh = true
	}
	i.mu.Unlock()

	select {
	case i.kick <- struct{}{}:
	default:
	}
}

func (i *Initializer) drain(ctx context.Context) {
	i.mu.Lock()
	signOut, refresh := i.pendingSignOut, i.pendingRefresh
	i.pendingSignOut, i.pendingRefresh = false, false
	i.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if signOut {
		i.store.clear()
	}
	if refresh {
		i.store.RefreshSession(ctx)
	}
}
