package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/hds-conecte/conecte/internal/auth"
	"github.com/hds-conecte/conecte/internal/guard"
	"github.com/hds-conecte/conecte/internal/models"
	"github.com/hds-conecte/conecte/internal/roles"
)

const (
	bearerPrefix     = "Bearer "
	accessTokenQuery = "access_token" // EventSource clients cannot set headers
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrEmptyToken        = errors.New("empty token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUserNotFound      = errors.New("user not found")
)

func setSession(c *gin.Context, sessionData *auth.SessionData) {
	c.Set("session", sessionData)
}

func GetSessionData(c *gin.Context) (*auth.SessionData, bool) {
	session, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*auth.SessionData)
	return sessionData, ok
}

// mustSession returns the session set by JWTAuthMiddleware
func mustSession(c *gin.Context) *auth.SessionData {
	sessionData, ok := GetSessionData(c)
	if !ok {
		panic("server: handler registered without JWTAuthMiddleware")
	}
	return sessionData
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", ErrInvalidAuthFormat
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
	c.Abort()
}

// JWTAuthMiddleware validates access tokens and loads the caller's current role
func JWTAuthMiddleware(issuer *auth.Issuer, db *gorm.DB, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if q := c.Query(accessTokenQuery); q != "" {
				authHeader = bearerPrefix + q
			}
		}

		token, err := extractBearerToken(authHeader)
		if err != nil {
			var message string
			switch err {
			case ErrMissingAuthHeader:
				message = "Missing authorization header"
			case ErrInvalidAuthFormat:
				message = "Invalid authorization header format"
			case ErrEmptyToken:
				message = "Empty token"
			}
			respondWithError(c, log, http.StatusUnauthorized, err, message)
			return
		}

		claims, err := issuer.ValidateToken(token)
		if err != nil {
			respondWithError(c, log, http.StatusUnauthorized, ErrInvalidToken, "Invalid or expired token")
			return
		}

		// The role comes from the account row so role changes apply immediately
		var user models.User
		if err := db.Where("id = ?", claims.UserID()).First(&user).Error; err != nil {
			log.Error().Err(err).Str("user_id", claims.UserID()).Msg("User not found")
			respondWithError(c, log, http.StatusUnauthorized, ErrUserNotFound, "User not found")
			return
		}

		setSession(c, &auth.SessionData{
			UserID:   user.ID,
			Email:    user.Email,
			Role:     roles.OrDefault(user.Role),
			Provider: user.Provider,
		})

		c.Next()
	}
}

// RequireRole ensures the authenticated user holds one of the allowed roles
func RequireRole(log zerolog.Logger, allowed ...roles.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionData, exists := GetSessionData(c)
		if !exists {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("no session"), "Unauthorized")
			return
		}

		if !guard.RoleAllowed(sessionData.Role, allowed...) {
			respondWithError(c, log, http.StatusForbidden, errors.New("role not allowed"), "Insufficient role")
			return
		}

		c.Next()
	}
}
