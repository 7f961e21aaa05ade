package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hds-conecte/conecte/internal/roles"
)

func TestGenerateAndValidateToken(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, expiresAt, err := issuer.GenerateToken("01HUSER", "ana@hds.org", roles.Admin, "email")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "01HUSER", claims.UserID())
	assert.Equal(t, "ana@hds.org", claims.Email)
	assert.Equal(t, roles.Admin, claims.Role)
	assert.Equal(t, "email", claims.AppMetadata.Provider)
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	token, _, err := NewIssuer("one", time.Hour).GenerateToken("u", "e@x.com", roles.User, "email")
	require.NoError(t, err)

	_, err = NewIssuer("two", time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.GenerateToken("u", "e@x.com", roles.User, "email")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.ValidateToken(token)
	assert.Error(t, err)
}

func TestStateIsNotAnAccessToken(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)

	state, err := issuer.GenerateState("/challenge", time.Minute)
	require.NoError(t, err)

	claims, err := issuer.ValidateState(state)
	require.NoError(t, err)
	assert.Equal(t, "/challenge", claims.RedirectTo)

	_, err = issuer.ValidateToken(state)
	assert.Error(t, err, "state token must not authenticate requests")
}

func TestUninitializedSecret(t *testing.T) {
	_, _, err := NewIssuer("", time.Hour).GenerateToken("u", "e", roles.User, "email")
	assert.ErrorIs(t, err, ErrSecretNotInitialized)
}
