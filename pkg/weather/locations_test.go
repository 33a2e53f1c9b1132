package weather

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGazetteer(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(g.List()), 60)
}

func TestResolveExactAndCaseInsensitive(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	loc, err := g.Resolve("Punjab")
	require.NoError(t, err)
	assert.Equal(t, "Punjab", loc.Name)

	loc, err = g.Resolve("punjab")
	require.NoError(t, err)
	assert.Equal(t, "Punjab", loc.Name)

	loc, err = g.Resolve("  PUNJAB  ")
	require.NoError(t, err)
	assert.Equal(t, "Punjab", loc.Name)
}

func TestResolveSubstring(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	loc, err := g.Resolve("ludhiana district")
	require.NoError(t, err)
	assert.Equal(t, "Ludhiana", loc.Name)

	loc, err = g.Resolve("bengal")
	require.NoError(t, err)
	assert.Equal(t, "West Bengal", loc.Name)
}

func TestResolveUnknownSuggestsThree(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	_, err = g.Resolve("Atlantis")
	require.Error(t, err)

	var unknownErr *UnknownLocationError
	require.True(t, errors.As(err, &unknownErr))
	assert.Len(t, unknownErr.Suggestions, 3)
}

func TestResolveTypoSuggestsIntended(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	// "Punjb" matches nothing as a substring; the suggestion list should
	// lead with the closest real name.
	_, err = g.Resolve("Punjbx")
	var unknownErr *UnknownLocationError
	require.True(t, errors.As(err, &unknownErr))
	assert.Equal(t, "Punjab", unknownErr.Suggestions[0])
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("punjab", "punjab"))
	assert.Equal(t, 1, editDistance("punjab", "punjob"))
	assert.Equal(t, 6, editDistance("", "punjab"))
	assert.Equal(t, 3, editDistance("kitten", "sitting"))
}
