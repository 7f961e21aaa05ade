package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hds-conecte/conecte/internal/models"
)

func TestOpenMigratesAndAssignsULIDs(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	team := models.Team{Name: "Leões de Judá"}
	require.NoError(t, db.Create(&team).Error)
	assert.Len(t, team.ID, 26)

	var got models.Team
	require.NoError(t, models.FindByID(db, team.ID, &got))
	assert.Equal(t, "Leões de Judá", got.Name)
}
