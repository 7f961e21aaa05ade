package session

import (
	"github.com/hds-conecte/conecte/internal/backend"
	"github.com/hds-conecte/conecte/internal/models"
)

type action interface {
	apply(State) State
}

type loadingStarted struct{}

func (loadingStarted) apply(s State) State {
	s.inflight++
	return s
}

type loadingFinished struct{}

func (loadingFinished) apply(s State) State {
	if s.inflight > 0 {
		s.inflight--
	}
	return s
}

type signedIn struct {
	session *backend.Session
	user    *backend.User
	profile *models.Profile
}

func (a signedIn) apply(s State) State {
	s.epoch++
	return a.install(s)
}

func (a signedIn) install(s State) State {
	s.Session = a.session
	s.BackendUser = a.user
	if s.BackendUser == nil && a.session != nil {
		s.BackendUser = a.session.User
	}
	s.Profile = a.profile
	s.PendingConfirmation = ""
	if s.BackendUser != nil {
		s.LastEmail = s.BackendUser.Email
	}
	return s
}

// refreshed carries a RefreshSession result. It is dropped when a sign-in
// or sign-out happened after the refresh read the backend.
type refreshed struct {
	signedIn
	epoch int
}

func (a refreshed) apply(s State) State {
	if a.epoch != s.epoch {
		return s
	}
	return a.install(s)
}

type signedOut struct{}

func (signedOut) apply(s State) State {
	s.epoch++
	s.Session = nil
	s.BackendUser = nil
	s.Profile = nil
	return s
}

type profileUpdated struct {
	profile *models.Profile
}

func (a profileUpdated) apply(s State) State {
	s.Profile = a.profile
	return s
}

type awaitingConfirmation struct {
	email string
}

func (a awaitingConfirmation) apply(s State) State {
	s = signedOut{}.apply(s)
	s.PendingConfirmation = a.email
	return s
}

type companyInfoUpdated struct {
	info CompanyInfo
}

func (a companyInfoUpdated) apply(s State) State {
	s.CompanyInfo = a.info
	return s
}

type restored struct {
	snap Persisted
}

func (a restored) apply(s State) State {
	// Tokens are never persisted; the account comes back through
	// RefreshSession, not from the snapshot
	s.PendingConfirmation = a.snap.PendingConfirmation
	s.LastEmail = a.snap.LastEmail
	if a.snap.CompanyInfo != (CompanyInfo{}) {
		s.CompanyInfo = a.snap.CompanyInfo
	}
	return s
}

// reduce applies a and re-establishes the state invariants:
// IsAuthenticated == (Session != nil) and User == nil iff BackendUser == nil
func reduce(s State, a action) State {
	s = a.apply(s)

	if s.Profile != nil && (s.BackendUser == nil || s.Profile.ID != s.BackendUser.ID) {
		s.Profile = nil
	}
	if s.Session == nil {
		s.BackendUser = nil
		s.Profile = nil
	}
	s.IsAuthenticated = s.Session != nil
	s.User = deriveUser(s.BackendUser, s.Profile)
	s.IsLoading = s.inflight > 0
	return s
}
