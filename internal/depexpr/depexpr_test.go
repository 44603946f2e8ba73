package depexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
)

func TestParseSingle(t *testing.T) {
	vs, err := Parse("HEAD")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: 0}}, vs.Flatten())

	vs, err = Parse("HEAD^")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: -1}}, vs.Flatten())

	vs, err = Parse("HEAD^^^")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: -3}}, vs.Flatten())

	vs, err = Parse("HEAD^2")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: -2}}, vs.Flatten())

	vs, err = Parse("HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: -1, CommittedOnly: true}}, vs.Flatten())

	vs, err = Parse("HEAD~")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: -1, CommittedOnly: true}}, vs.Flatten())
}

func TestParseFixed(t *testing.T) {
	id := ids.New()
	vs, err := Parse(id)
	require.NoError(t, err)
	require.Len(t, vs.Flatten(), 1)
	assert.True(t, vs.Flatten()[0].IsFixed())
	assert.Equal(t, id, vs.Flatten()[0].Fixed)
}

func TestParseList(t *testing.T) {
	vs, err := Parse("HEAD,HEAD^1")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: 0}, {Back: -1}}, vs.Flatten())

	vs, err = Parse("HEAD~2,HEAD~1,HEAD")
	require.NoError(t, err)
	assert.Len(t, vs.Flatten(), 3)
}

func TestParseRange(t *testing.T) {
	vs, err := Parse("HEAD^2..HEAD")
	require.NoError(t, err)
	require.True(t, vs.IsRange())
	assert.Equal(t, -2, vs.RangeLo.Back)
	assert.Equal(t, 0, vs.RangeHi.Back)

	// Higher-to-lower HEAD ranges are rejected.
	_, err = Parse("HEAD..HEAD^2")
	assert.Error(t, err)

	// Mixed walk classes in one range are ambiguous.
	_, err = Parse("HEAD~2..HEAD^1")
	assert.Error(t, err)
}

func TestParseInvalid(t *testing.T) {
	for _, expr := range []string{
		"HEAD-1",
		"HEAD~a",
		"HEAD^-2",
		"latest",
		"HEAD,,HEAD",
		"xyz..HEAD",
	} {
		_, err := Parse(expr)
		assert.Error(t, err, "expected %q to be invalid", expr)
	}
}

func TestEmptyDefaultsToHead(t *testing.T) {
	vs, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, []Version{{Back: 0}}, vs.Flatten())
}

func TestShift(t *testing.T) {
	vs, err := Parse("HEAD,HEAD^1")
	require.NoError(t, err)
	vs.Shift(1)
	assert.Equal(t, []Version{{Back: 1}, {Back: 0}}, vs.Flatten())

	id := ids.New()
	vs, err = Parse(id)
	require.NoError(t, err)
	vs.Shift(1)
	assert.Equal(t, id, vs.Flatten()[0].Fixed)
}

func TestRoundTripString(t *testing.T) {
	for _, expr := range []string{"HEAD", "HEAD~2", "HEAD^1,HEAD", "HEAD~2..HEAD"} {
		vs, err := Parse(expr)
		require.NoError(t, err)
		again, err := Parse(vs.String())
		require.NoError(t, err)
		assert.Equal(t, vs.String(), again.String())
	}
}
