package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse("dev-admin")
	require.NoError(t, err)
	assert.Equal(t, DevAdmin, r)

	_, err = Parse("superuser")
	assert.Error(t, err)
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, User, OrDefault(""))
	assert.Equal(t, User, OrDefault("root"))
	assert.Equal(t, Admin, OrDefault(Admin))
}

func TestIn(t *testing.T) {
	assert.True(t, In(DevAdmin, Staff...))
	assert.True(t, In(Admin, Staff...))
	assert.False(t, In(User, Staff...))
	assert.False(t, In(User))
}
