package tableref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse("persons", "examples")
	require.NoError(t, err)
	assert.Equal(t, "examples", r.Collection)
	assert.Equal(t, "persons", r.Table)
	assert.Equal(t, "HEAD", r.Versions.String())

	r, err = Parse("other/emails@HEAD,HEAD^1", "examples")
	require.NoError(t, err)
	assert.Equal(t, "other", r.Collection)
	assert.Equal(t, "emails", r.Table)
	assert.Len(t, r.Versions.Flatten(), 2)
	assert.Equal(t, "HEAD,HEAD^1", r.RawVersions)

	r, err = Parse("td:///examples/persons@HEAD", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "examples", r.Collection)

	r, err = Parse(".state", "examples")
	require.NoError(t, err)
	assert.True(t, r.System())
}

func TestParseInvalid(t *testing.T) {
	for _, ref := range []string{"", "a/b/c", "bad name", "t@HEAD-1", "1table"} {
		_, err := Parse(ref, "examples")
		assert.Error(t, err, "expected %q to be invalid", ref)
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("persons"))
	assert.True(t, ValidName("my_table-2"))
	assert.False(t, ValidName(".state"))
	assert.False(t, ValidName("9lives"))
	assert.False(t, ValidName(""))
}
