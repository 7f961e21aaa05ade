package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/roles"
)

func newTestStore(t *testing.T) (*Store, *fakeBackend, *noticeLog) {
	t.Helper()
	fb := newFakeBackend()
	notices := &noticeLog{}
	return New(fb, WithNotifier(notices)), fb, notices
}

func assertSignedOut(t *testing.T, s State) {
	t.Helper()
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.Nil(t, s.BackendUser)
	assert.Nil(t, s.Session)
	assert.Nil(t, s.Profile)
	assert.False(t, s.IsLoading)
}

func TestSignInWithInvalidCredentials(t *testing.T) {
	store, fb, notices := newTestStore(t)
	fb.addAccount("maria@hds.example", "s3nha-forte", "Maria", roles.User)

	attempts := []struct{ email, password string }{
		{"maria@hds.example", "wrong"},
		{"maria@hds.example", ""},
		{"nobody@hds.example", "s3nha-forte"},
		{"", ""},
	}
	for _, a := range attempts {
		res := store.SignInWithEmail(context.Background(), a.email, a.password)
		assert.False(t, res.Success)
		assert.Equal(t, "Invalid login credentials", res.Error)
		assertSignedOut(t, store.Snapshot())
	}
	assert.Equal(t, Notice{Level: LevelError, Message: "Invalid login credentials"}, notices.last())
}

func TestSignInUnexpectedErrorUsesGenericNotice(t *testing.T) {
	store, fb, notices := newTestStore(t)
	fb.signInErr = errors.New("dial tcp: connection refused")

	res := store.SignInWithEmail(context.Background(), "maria@hds.example", "s3nha-forte")
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to login. Please try again.", res.Error)
	assert.Equal(t, LevelError, notices.last().Level)
	assertSignedOut(t, store.Snapshot())
}

func TestSignInLoadsProfileAndRole(t *testing.T) {
	store, fb, notices := newTestStore(t)
	a := fb.addAccount("dev@hds.example", "s3nha-forte", "Dev", roles.DevAdmin)
	photo := "https://hds.example/uploads/avatars/dev.png"
	a.profile.Name = "Dev Admin"
	a.profile.PhotoURL = &photo

	var loadingSeen bool
	fb.during = func() { loadingSeen = store.Snapshot().IsLoading }

	res := store.SignInWithEmail(context.Background(), "dev@hds.example", "s3nha-forte")
	require.True(t, res.Success)
	assert.True(t, loadingSeen)

	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.False(t, snap.IsLoading)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Dev Admin", snap.User.Name)
	assert.Equal(t, roles.DevAdmin, snap.User.Role)
	assert.Equal(t, &photo, snap.User.PhotoURL)
	assert.Equal(t, "dev@hds.example", snap.LastEmail)
	assert.Equal(t, Notice{Level: LevelSuccess, Message: "Login successful!"}, notices.last())
}

func TestLogoutClearsEverything(t *testing.T) {
	store, fb, notices := newTestStore(t)
	fb.addAccount("maria@hds.example", "s3nha-forte", "Maria", roles.User)
	require.True(t, store.SignInWithEmail(context.Background(), "maria@hds.example", "s3nha-forte").Success)

	// Local state is cleared even when the backend call fails
	fb.signOutErr = errors.New("network down")

	res := store.Logout(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, guard.PathLogin, res.RedirectURL)
	assertSignedOut(t, store.Snapshot())
	assert.Equal(t, 1, fb.count("SignOut"))
	assert.Equal(t, "Logged out successfully", notices.last().Message)
}

func TestUpdateCompanyInfoRequiresDevAdmin(t *testing.T) {
	name := "HDS Digital"

	for _, role := range []roles.Role{roles.User, roles.Admin} {
		t.Run(string(role), func(t *testing.T) {
			store, fb, _ := newTestStore(t)
			fb.addAccount("x@hds.example", "s3nha-forte", "X", role)
			require.True(t, store.SignInWithEmail(context.Background(), "x@hds.example", "s3nha-forte").Success)

			res := store.UpdateCompanyInfo(CompanyInfoUpdate{Name: &name})
			assert.False(t, res.Success)
			assert.Equal(t, ErrTextUnauthorized, res.Error)
			assert.Equal(t, DefaultCompanyInfo, store.Snapshot().CompanyInfo)
			assert.False(t, store.Snapshot().IsLoading)
		})
	}

	t.Run("signed out", func(t *testing.T) {
		store, _, _ := newTestStore(t)
		res := store.UpdateCompanyInfo(CompanyInfoUpdate{Name: &name})
		assert.Equal(t, ErrTextUnauthorized, res.Error)
		assert.Equal(t, DefaultCompanyInfo, store.Snapshot().CompanyInfo)
	})

	t.Run("dev-admin", func(t *testing.T) {
		store, fb, notices := newTestStore(t)
		fb.addAccount("dev@hds.example", "s3nha-forte", "Dev", roles.DevAdmin)
		require.True(t, store.SignInWithEmail(context.Background(), "dev@hds.example", "s3nha-forte").Success)

		res := store.UpdateCompanyInfo(CompanyInfoUpdate{Name: &name})
		assert.True(t, res.Success)
		info := store.Snapshot().CompanyInfo
		assert.Equal(t, name, info.Name)
		assert.Equal(t, DefaultCompanyInfo.Logo, info.Logo)
		assert.Equal(t, "Company information updated successfully", notices.last().Message)
	})
}

func TestUpdateProfileRequiresUser(t *testing.T) {
	store, fb, notices := newTestStore(t)
	name := "Ghost"

	before := store.Snapshot()
	res := store.UpdateProfile(context.Background(), backend.ProfileUpdate{Name: &name})
	assert.False(t, res.Success)
	assert.Equal(t, ErrTextNotAuthenticated, res.Error)
	assert.Equal(t, before, store.Snapshot())
	assert.Zero(t, fb.count("UpdateProfile"))
	assert.Equal(t, "User not authenticated", notices.last().Message)
}

func TestUpdateProfile(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("maria@hds.example", "s3nha-forte", "Maria", roles.User)
	require.True(t, store.SignInWithEmail(context.Background(), "maria@hds.example", "s3nha-forte").Success)

	name, church := "Maria Souza", "Sede"
	res := store.UpdateProfile(context.Background(), backend.ProfileUpdate{Name: &name, Church: &church})
	require.True(t, res.Success)

	snap := store.Snapshot()
	assert.Equal(t, "Maria Souza", snap.User.Name)
	require.NotNil(t, snap.Profile.Church)
	assert.Equal(t, "Sede", *snap.Profile.Church)
}

func TestSignupWithConfirmationRequired(t *testing.T) {
	store, fb, notices := newTestStore(t)
	fb.requireConfirmation = true

	res := store.Signup(context.Background(), "test@x.com", "secret1", "Test")
	assert.True(t, res.Success)
	assert.Empty(t, res.Error)

	snap := store.Snapshot()
	assertSignedOut(t, snap)
	assert.Equal(t, "test@x.com", snap.PendingConfirmation)
	assert.Equal(t, LevelSuccess, notices.last().Level)
	// No follow-up sign-in is attempted
	assert.Zero(t, fb.count("SignInWithPassword"))
}

func TestSignupWithImmediateSession(t *testing.T) {
	store, _, notices := newTestStore(t)

	res := store.Signup(context.Background(), "test@x.com", "secret1", "Test")
	assert.True(t, res.Success)

	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "Test", snap.User.Name)
	assert.Equal(t, roles.User, snap.User.Role)
	assert.Empty(t, snap.PendingConfirmation)
	assert.Equal(t, "Account created successfully!", notices.last().Message)
}

func TestSignupRejected(t *testing.T) {
	store, _, _ := newTestStore(t)

	res := store.Signup(context.Background(), "test@x.com", "123", "Test")
	assert.False(t, res.Success)
	assert.Equal(t, "Password should be at least 6 characters", res.Error)
	assertSignedOut(t, store.Snapshot())
}

func TestRefreshSessionWithoutBackendSession(t *testing.T) {
	store, _, _ := newTestStore(t)

	for i := 0; i < 2; i++ {
		res := store.RefreshSession(context.Background())
		assert.True(t, res.Success)
		assertSignedOut(t, store.Snapshot())
	}
}

func TestRefreshSessionPicksUpStoredRole(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.User)
	fb.signIn("ana@hds.example")

	require.True(t, store.RefreshSession(context.Background()).Success)
	assert.Equal(t, roles.User, store.Snapshot().Role())

	fb.setRole("ana@hds.example", roles.Admin)
	require.True(t, store.RefreshSession(context.Background()).Success)
	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, roles.Admin, snap.Role())
	assert.Equal(t, guard.Render, guard.Resolve(guard.PathAdmin, snap.Guard()).Action)
}

func TestRefreshSessionCancelledLeavesState(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.User)
	fb.signIn("ana@hds.example")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := store.RefreshSession(ctx)
	assert.False(t, res.Success)
	assertSignedOut(t, store.Snapshot())
}

func TestRefreshOverlappingLogoutStaysSignedOut(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.User)
	fb.signIn("ana@hds.example")

	// The refresh has read the session when the user logs out
	fb.onGetProfile = func() {
		require.True(t, store.Logout(context.Background()).Success)
	}

	res := store.RefreshSession(context.Background())
	assert.True(t, res.Success)
	assertSignedOut(t, store.Snapshot())

	// A later refresh sees the backend signed out too
	require.True(t, store.RefreshSession(context.Background()).Success)
	assertSignedOut(t, store.Snapshot())
}

func TestRefreshOverlappingSignInKeepsNewSession(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("ana@hds.example", "s3nha-forte", "Ana", roles.User)
	fb.addAccount("bia@hds.example", "s3nha-forte", "Bia", roles.User)
	fb.signIn("ana@hds.example")

	fb.onGetProfile = func() {
		require.True(t, store.SignInWithEmail(context.Background(), "bia@hds.example", "s3nha-forte").Success)
	}

	require.True(t, store.RefreshSession(context.Background()).Success)
	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "bia@hds.example", snap.User.Email)
}

func TestRecoverPassword(t *testing.T) {
	store, _, notices := newTestStore(t)

	res := store.RecoverPassword(context.Background(), "maria@hds.example")
	assert.True(t, res.Success)
	assert.Equal(t, "Recovery email sent. Please check your inbox.", notices.last().Message)

	res = store.RecoverPassword(context.Background(), "")
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to send recovery email. Please try again.", res.Error)
	assert.False(t, store.Snapshot().IsLoading)
}

func TestSignInWithGoogleDoesNotAuthenticate(t *testing.T) {
	store, _, _ := newTestStore(t)

	res := store.SignInWithGoogle(context.Background(), "http://127.0.0.1:5555/callback")
	assert.True(t, res.Success)
	assert.Contains(t, res.RedirectURL, "accounts.google.example")
	assertSignedOut(t, store.Snapshot())
}

func TestSubscribe(t *testing.T) {
	store, fb, _ := newTestStore(t)
	fb.addAccount("maria@hds.example", "s3nha-forte", "Maria", roles.User)

	var seen []State
	unsubscribe := store.Subscribe(func(s State) { seen = append(seen, s) })

	require.True(t, store.SignInWithEmail(context.Background(), "maria@hds.example", "s3nha-forte").Success)
	require.NotEmpty(t, seen)
	assert.True(t, seen[0].IsLoading)
	last := seen[len(seen)-1]
	assert.True(t, last.IsAuthenticated)
	assert.False(t, last.IsLoading)

	unsubscribe()
	n := len(seen)
	store.Logout(context.Background())
	assert.Len(t, seen, n)
}
