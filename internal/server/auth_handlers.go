package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/tasks"
)

const (
	grantPassword     = "password"
	grantRefreshToken = "refresh_token"
	oauthStateTTL     = 10 * time.Minute
)

// SignupRequest represents an account registration
type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

// SignupResponse carries the new account and, when no confirmation is
// required, its first session
type SignupResponse struct {
	User    *UserDetail      `json:"user"`
	Session *SessionResponse `json:"session"`
}

// TokenRequest is the body of both token grants
type TokenRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

// RecoverRequest asks for a password reset email
type RecoverRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetPasswordRequest sets a new password with an emailed token
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ConfirmRequest confirms an email address with an emailed token
type ConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// validEmail normalizes raw and checks the result is an email address,
// so surrounding blanks and case never reject an otherwise valid one
func (s *Server) validEmail(c *gin.Context, raw string) (string, bool) {
	email := normalizeEmail(raw)
	if err := s.validator.Var(email, "email"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
		return "", false
	}
	return email, true
}

func (s *Server) passwordTooShort(c *gin.Context, password string) bool {
	if len(password) >= s.config.Auth.MinPasswordLength {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": fmt.Sprintf("Password should be at least %d characters", s.config.Auth.MinPasswordLength),
	})
	return true
}

// enqueueEmail queues an auth email; failures are logged and reported
func (s *Server) enqueueEmail(c *gin.Context, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	if _, err := s.enqueuer.EnqueueContext(c.Request.Context(), task); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	s.logger.Debug().Str("type", task.Type()).Msg("Email task enqueued")
	return nil
}

// @Summary Sign up
// @Description Creates an account with its profile. Returns a session unless email confirmation is required.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup request"
// @Success 200 {object} SignupResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/auth/signup [post]
func (s *Server) signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email, ok := s.validEmail(c, req.Email)
	if !ok {
		return
	}
	if s.passwordTooShort(c, req.Password) {
		return
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		s.logger.Error().Err(err).Msg("Failed to check existing user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "User already registered"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	requireConfirm := s.config.Auth.RequireEmailConfirmation
	user := &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Role:         s.initialRole(email),
		Provider:     models.ProviderEmail,
	}
	if !requireConfirm {
		now := s.now()
		user.EmailConfirmedAt = &now
	}

	var (
		session      *SessionResponse
		confirmToken string
	)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := tx.Create(&models.Profile{ID: user.ID, Name: req.Name}).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}

		var err error
		if requireConfirm {
			confirmToken, err = s.createAuthToken(tx, user.ID, models.TokenEmailConfirmation, s.config.Auth.ResetTokenTTL)
			return err
		}
		session, err = s.issueSession(tx, user, "")
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("Failed to sign up")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	if requireConfirm {
		task, err := tasks.NewSendSignupConfirmationTask(tasks.EmailPayload{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Token:  confirmToken,
		})
		if err := s.enqueueEmail(c, task, err); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to queue confirmation email")
		}
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Str("role", string(user.Role)).
		Bool("confirmation_required", requireConfirm).
		Msg("User signed up")

	c.JSON(http.StatusOK, SignupResponse{
		User:    newUserDetail(user),
		Session: session,
	})
}

// @Summary Issue tokens
// @Description Password grant or refresh token grant (rotates the refresh token)
// @Tags auth
// @Accept json
// @Produce json
// @Param grant_type query string true "password or refresh_token"
// @Param request body TokenRequest true "Credentials"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/token [post]
func (s *Server) token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch c.Query("grant_type") {
	case grantPassword:
		s.passwordGrant(c, req)
	case grantRefreshToken:
		s.refreshGrant(c, req)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported grant_type"})
	}
}

func (s *Server) passwordGrant(c *gin.Context, req TokenRequest) {
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	email, ok := s.validEmail(c, req.Email)
	if !ok {
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid login credentials"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if err := auth.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid login credentials"})
		return
	}
	if !user.Confirmed() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email not confirmed"})
		return
	}

	session, err := s.issueSession(s.db, &user, "")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User logged in")
	c.JSON(http.StatusOK, session)
}

func (s *Server) refreshGrant(c *gin.Context, req TokenRequest) {
	if req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	session, err := s.rotateRefreshToken(req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenInvalid) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to rotate refresh token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh session"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// @Summary Logout
// @Description Revokes every refresh token of the caller
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /api/auth/logout [post]
func (s *Server) logout(c *gin.Context) {
	sessionData := mustSession(c)

	if err := revokeUserSessions(s.db, sessionData.UserID, s.now()); err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to revoke sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign out"})
		return
	}

	s.logger.Info().Str("user_id", sessionData.UserID).Msg("User logged out")
	c.Status(http.StatusNoContent)
}

// @Summary Request password reset
// @Description Emails a reset link. Responds 200 whether or not the account exists.
// @Tags auth
// @Accept json
// @Param request body RecoverRequest true "Account email"
// @Success 200 {object} map[string]interface{}
// @Router /api/auth/recover [post]
func (s *Server) recoverPassword(c *gin.Context) {
	var req RecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email, ok := s.validEmail(c, req.Email)
	if !ok {
		return
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	raw, err := s.createAuthToken(s.db, user.ID, models.TokenPasswordReset, s.config.Auth.ResetTokenTTL)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create reset token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send recovery email"})
		return
	}

	task, err := tasks.NewSendPasswordResetTask(tasks.EmailPayload{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Token:  raw,
	})
	if err := s.enqueueEmail(c, task, err); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to queue reset email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send recovery email"})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Msg("Password reset requested")
	c.JSON(http.StatusOK, gin.H{})
}

// @Summary Reset password
// @Description Sets a new password using an emailed reset token and signs out all sessions
// @Tags auth
// @Accept json
// @Param request body ResetPasswordRequest true "Reset request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/auth/reset [post]
func (s *Server) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.passwordTooShort(c, req.Password) {
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	var userID string
	err = s.db.Transaction(func(tx *gorm.DB) error {
		row, err := s.consumeAuthToken(tx, req.Token, models.TokenPasswordReset)
		if err != nil {
			return err
		}
		userID = row.UserID

		now := s.now()
		if err := tx.Model(&models.User{}).Where("id = ?", row.UserID).
			Update("password_hash", passwordHash).Error; err != nil {
			return err
		}
		// Following the emailed link proves ownership of the address
		if err := tx.Model(&models.User{}).Where("id = ? AND email_confirmed_at IS NULL", row.UserID).
			Update("email_confirmed_at", now).Error; err != nil {
			return err
		}
		return revokeUserSessions(tx, row.UserID, now)
	})
	if err != nil {
		if errors.Is(err, ErrAuthTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Reset link is invalid or has expired"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to reset password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	s.logger.Info().Str("user_id", userID).Msg("Password reset")
	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}

// @Summary Confirm email
// @Description Confirms an account with an emailed token and signs it in
// @Tags auth
// @Accept json
// @Param request body ConfirmRequest true "Confirmation token"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/auth/confirm [post]
func (s *Server) confirmEmail(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var session *SessionResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		row, err := s.consumeAuthToken(tx, req.Token, models.TokenEmailConfirmation)
		if err != nil {
			return err
		}

		var user models.User
		if err := models.FindByID(tx, row.UserID, &user); err != nil {
			return err
		}
		if user.EmailConfirmedAt == nil {
			now := s.now()
			user.EmailConfirmedAt = &now
			if err := tx.Model(&user).Update("email_confirmed_at", now).Error; err != nil {
				return err
			}
		}

		session, err = s.issueSession(tx, &user, "")
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAuthTokenInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Confirmation link is invalid or has expired"})
			return
		}
		s.logger.Error().Err(err).Msg("Failed to confirm email")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to confirm email"})
		return
	}

	s.logger.Info().Str("user_id", session.User.ID).Msg("Email confirmed")
	c.JSON(http.StatusOK, session)
}

// @Summary Get current user
// @Description Get information about the currently authenticated user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserDetail
// @Failure 401 {object} map[string]interface{}
// @Router /api/auth/user [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData := mustSession(c)

	var user models.User
	if err := models.FindByID(s.db, sessionData.UserID, &user); err != nil {
		s.logger.Error().Err(err).Str("user_id", sessionData.UserID).Msg("Failed to find user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, newUserDetail(&user))
}

// @Summary Start Google sign-in
// @Description Returns the Google consent URL. redirect_to receives the session as query parameters.
// @Tags auth
// @Produce json
// @Param redirect_to query string false "Where to send the browser after sign-in"
// @Success 200 {object} map[string]interface{}
// @Failure 501 {object} map[string]interface{}
// @Router /api/auth/oauth/google [get]
func (s *Server) googleAuthorize(c *gin.Context) {
	if s.oauth == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	redirectTo := c.Query("redirect_to")
	if !s.allowedRedirect(redirectTo) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "redirect_to is not allowed"})
		return
	}

	state, err := s.issuer.GenerateState(redirectTo, oauthStateTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sign OAuth state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": s.oauth.AuthURL(state)})
}

// @Summary Google sign-in callback
// @Tags auth
// @Param code query string true "Authorization code"
// @Param state query string true "State from the authorize step"
// @Success 200 {object} SessionResponse
// @Success 302
// @Failure 400 {object} map[string]interface{}
// @Router /api/auth/oauth/google/callback [get]
func (s *Server) googleCallback(c *gin.Context) {
	if s.oauth == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	state, err := s.issuer.ValidateState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	identity, err := s.oauth.Identify(c.Request.Context(), code)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Google identification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Google sign-in failed"})
		return
	}

	var session *SessionResponse
	err = s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.findOrCreateOAuthUser(tx, identity)
		if err != nil {
			return err
		}
		session, err = s.issueSession(tx, user, "")
		return err
	})
	if err != nil {
		s.logger.Error().Err(err).Str("email", identity.Email).Msg("Failed to sign in with Google")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Google sign-in failed"})
		return
	}

	s.logger.Info().Str("user_id", session.User.ID).Msg("User logged in with Google")

	if state.RedirectTo == "" {
		c.JSON(http.StatusOK, session)
		return
	}
	target, err := sessionRedirect(state.RedirectTo, session)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid redirect target"})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// findOrCreateOAuthUser links a provider identity to an account by email
func (s *Server) findOrCreateOAuthUser(tx *gorm.DB, identity *auth.OAuthUser) (*models.User, error) {
	email := normalizeEmail(identity.Email)
	now := s.now()

	var user models.User
	err := tx.Where("email = ?", email).First(&user).Error
	if err == nil {
		if user.EmailConfirmedAt == nil {
			user.EmailConfirmedAt = &now
			if err := tx.Model(&user).Update("email_confirmed_at", now).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name := identity.Name
	if name == "" {
		name = email
	}
	user = models.User{
		Email:            email,
		Name:             name,
		Role:             s.initialRole(email),
		Provider:         models.ProviderGoogle,
		EmailConfirmedAt: &now,
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	profile := models.Profile{ID: user.ID, Name: name}
	if identity.Picture != "" {
		profile.PhotoURL = &identity.Picture
	}
	if err := tx.Create(&profile).Error; err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &user, nil
}
