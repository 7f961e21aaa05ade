package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hds-conecte/conecte/internal/roles"
)

const (
	issuer        = "hds-conecte"
	audienceAuth  = "authenticated"
	audienceState = "oauth-state"
)

var (
	ErrSecretNotInitialized = errors.New("JWT secret not initialized")
	ErrInvalidToken         = errors.New("invalid token")
)

// JWTClaims represents the access token claims
type JWTClaims struct {
	Email       string     `json:"email"`
	Role        roles.Role `json:"role"`
	AppMetadata struct {
		Provider string `json:"provider"`
	} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim
func (c *JWTClaims) UserID() string {
	return c.Subject
}

// StateClaims carries the OAuth round-trip state
type StateClaims struct {
	RedirectTo string `json:"redirect_to,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewIssuer creates an issuer for the given secret
func NewIssuer(secret string, accessTTL time.Duration) *Issuer {
	return &Issuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// AccessTTL returns the lifetime of issued access tokens
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// GenerateToken creates a new access token for a user
func (i *Issuer) GenerateToken(userID, email string, role roles.Role, provider string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrSecretNotInitialized
	}

	now := i.now()
	expiresAt := now.Add(i.accessTTL)

	claims := JWTClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceAuth},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	claims.AppMetadata.Provider = provider

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates an access token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	if err := i.parse(tokenString, claims, audienceAuth); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateState signs a short-lived OAuth state value
func (i *Issuer) GenerateState(redirectTo string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrSecretNotInitialized
	}
	now := i.now()
	claims := StateClaims{
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceState},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// ValidateState checks a state value produced by GenerateState
func (i *Issuer) ValidateState(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	if err := i.parse(state, claims, audienceState); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, audience string) error {
	if len(i.secret) == 0 {
		return ErrSecretNotInitialized
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
