package server

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

var (
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	ErrAuthTokenInvalid    = errors.New("token invalid or expired")
)

// SessionResponse is returned by every endpoint that signs a user in
type SessionResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *UserDetail `json:"user"`
}

// UserDetail represents user information returned in responses
type UserDetail struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name"`
	Role             roles.Role `json:"role"`
	Provider         string     `json:"provider"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newUserDetail(u *models.User) *UserDetail {
	return &UserDetail{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		Role:             roles.OrDefault(u.Role),
		Provider:         u.Provider,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// initialRole is the role stored on a newly created account
func (s *Server) initialRole(email string) roles.Role {
	for _, e := range s.config.Auth.BootstrapDevAdmins {
		if normalizeEmail(e) == email {
			return roles.DevAdmin
		}
	}
	return roles.User
}

// issueSession mints an access token plus a refresh token in familyID.
// An empty familyID starts a new family.
func (s *Server) issueSession(tx *gorm.DB, user *models.User, familyID string) (*SessionResponse, error) {
	access, expiresAt, err := s.issuer.GenerateToken(user.ID, user.Email, roles.OrDefault(user.Role), user.Provider)
	if err != nil {
		return nil, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	if familyID == "" {
		familyID = uuid.NewString()
	}

	row := &models.RefreshToken{
		UserID:    user.ID,
		FamilyID:  familyID,
		TokenHash: auth.HashToken(refresh),
		ExpiresAt: s.now().Add(s.config.Auth.RefreshTokenTTL),
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &SessionResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refresh,
		User:         newUserDetail(user),
	}, nil
}

// rotateRefreshToken consumes a refresh token and issues its successor.
// Presenting an already-rotated token revokes the whole family.
func (s *Server) rotateRefreshToken(raw string) (*SessionResponse, error) {
	var row models.RefreshToken
	if err := s.db.Where("token_hash = ?", auth.HashToken(raw)).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshTokenInvalid
		}
		return nil, err
	}

	now := s.now()
	if row.RevokedAt != nil {
		if err := revokeFamily(s.db, row.FamilyID, now); err != nil {
			return nil, err
		}
		s.logger.Warn().Str("user_id", row.UserID).Str("family_id", row.FamilyID).Msg("Refresh token reuse detected, family revoked")
		return nil, ErrRefreshTokenInvalid
	}
	if now.After(row.ExpiresAt) {
		return nil, ErrRefreshTokenInvalid
	}

	var session *SessionResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", row.ID).
			Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshTokenInvalid
		}

		var user models.User
		if err := models.FindByID(tx, row.UserID, &user); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRefreshTokenInvalid
			}
			return err
		}

		var err error
		session, err = s.issueSession(tx, &user, row.FamilyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func revokeFamily(tx *gorm.DB, familyID string, now time.Time) error {
	return tx.Model(&models.RefreshToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", now).Error
}

func revokeUserSessions(tx *gorm.DB, userID string, now time.Time) error {
	return tx.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now).Error
}

// createAuthToken stores a single-use emailed token and returns its raw form
func (s *Server) createAuthToken(tx *gorm.DB, userID, kind string, ttl time.Duration) (string, error) {
	raw, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	row := &models.AuthToken{
		UserID:    userID,
		Kind:      kind,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := tx.Create(row).Error; err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", kind, err)
	}
	return raw, nil
}

// consumeAuthToken marks an emailed token used and returns its row
func (s *Server) consumeAuthToken(tx *gorm.DB, raw, kind string) (*models.AuthToken, error) {
	var row models.AuthToken
	if err := tx.Where("token_hash = ? AND kind = ?", auth.HashToken(raw), kind).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAuthTokenInvalid
		}
		return nil, err
	}

	now := s.now()
	if row.UsedAt != nil || now.After(row.ExpiresAt) {
		return nil, ErrAuthTokenInvalid
	}

	res := tx.Model(&models.AuthToken{}).
		Where("id = ? AND used_at IS NULL", row.ID).
		Update("used_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAuthTokenInvalid
	}
	return &row, nil
}

// sessionRedirect appends the session to an OAuth redirect target
func sessionRedirect(target string, session *SessionResponse) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("access_token", session.AccessToken)
	q.Set("refresh_token", session.RefreshToken)
	q.Set("token_type", session.TokenType)
	q.Set("expires_in", strconv.FormatInt(session.ExpiresIn, 10))
	q.Set("expires_at", strconv.FormatInt(session.ExpiresAt, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// allowedRedirect accepts the site URL and loopback listeners used by the CLI
func (s *Server) allowedRedirect(target string) bool {
	if target == "" {
		return true
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" {
		return false
	}
	switch u.Hostname() {
	case "127.0.0.1", "localhost", "::1":
		return u.Scheme == "http"
	}
	site, err := url.Parse(s.config.Server.SiteURL)
	if err != nil {
		return false
	}
	return u.Scheme == site.Scheme && u.Host == site.Host
}
