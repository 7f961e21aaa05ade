package picker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func options(ids ...string) func() ([]Option, error) {
	return func() ([]Option, error) {
		out := make([]Option, len(ids))
		for i, id := range ids {
			out[i] = Option{ID: id, Label: "item " + id}
		}
		return out, nil
	}
}

func TestChooseArgumentWins(t *testing.T) {
	loaded := false
	id, err := Choose("e1", true, "Select an event", func() ([]Option, error) {
		loaded = true
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
	assert.False(t, loaded)
}

func TestChooseSingleOption(t *testing.T) {
	id, err := Choose("", false, "Select an event", options("only"))
	require.NoError(t, err)
	assert.Equal(t, "only", id)
}

func TestChooseNoOptions(t *testing.T) {
	_, err := Choose("", true, "Select an event", options())
	assert.ErrorIs(t, err, ErrNoOptions)
}

func TestChooseNonInteractive(t *testing.T) {
	_, err := Choose("", false, "Select an event", options("a", "b"))
	assert.ErrorContains(t, err, "ID argument is required")
}

func TestChoosePrompts(t *testing.T) {
	orig := prompt
	t.Cleanup(func() { prompt = orig })

	var gotLabel string
	prompt = func(label string, opts []Option) (int, error) {
		gotLabel = label
		return 1, nil
	}
	id, err := Choose("", true, "Select a team", options("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "b", id)
	assert.Equal(t, "Select a team", gotLabel)

	prompt = func(string, []Option) (int, error) { return 0, errors.New("^C") }
	_, err = Choose("", true, "Select a team", options("a", "b"))
	assert.Error(t, err)
}

func TestChooseLoadError(t *testing.T) {
	_, err := Choose("", true, "Select", func() ([]Option, error) { return nil, errors.New("boom") })
	assert.EqualError(t, err, "boom")
}
