package listing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() Spec {
	return Spec{
		IDColumn:   "id",
		Natural:    "triggered_on",
		OrderBy:    []string{"triggered_on", "name", "status"},
		Filter:     []string{"status", "name", "collection"},
		FilterLike: []string{"name"},
		DefaultLen: 100,
		MaxLen:     1000,
	}
}

func TestParseOrder(t *testing.T) {
	_, err := ParseOrder("")
	assert.Error(t, err)
	_, err = ParseOrder("-")
	assert.Error(t, err)
	_, err = ParseOrder("a=")
	assert.Error(t, err)

	o, err := ParseOrder("name")
	require.NoError(t, err)
	assert.Equal(t, Order{Field: "name"}, o)

	o, err = ParseOrder("name+")
	require.NoError(t, err)
	assert.False(t, o.Desc)

	o, err = ParseOrder("name-")
	require.NoError(t, err)
	assert.True(t, o.Desc)
}

func TestParseCondition(t *testing.T) {
	_, err := ParseCondition("")
	assert.Error(t, err)
	_, err = ParseCondition("name")
	assert.Error(t, err)
	_, err = ParseCondition(":eq:v")
	assert.Error(t, err)
	_, err = ParseCondition("a:ff:b")
	assert.Error(t, err)

	c, err := ParseCondition("name:eq:pub")
	require.NoError(t, err)
	assert.Equal(t, Condition{Field: "name", Op: OpEq, Value: "pub"}, c)

	// Like wildcards translate '*' into SQL '%'.
	c, err = ParseCondition("name:lk:pub*")
	require.NoError(t, err)
	assert.Equal(t, "pub%", c.Value)

	c, err = ParseCondition("status:btw:A::F")
	require.NoError(t, err)
	assert.Equal(t, "A", c.Value)
	assert.Equal(t, "F", c.Max)

	_, err = ParseCondition("status:btw:A")
	assert.Error(t, err)
}

func TestBuildValidation(t *testing.T) {
	spec := testSpec()

	_, err := spec.Build(Params{Filter: []string{"unknown:eq:v"}})
	assert.Error(t, err)

	// lk against a non-like column is rejected even if filterable.
	_, err = spec.Build(Params{Filter: []string{"status:lk:v"}})
	assert.Error(t, err)

	_, err = spec.Build(Params{OrderBy: "unknown"})
	assert.Error(t, err)

	_, err = spec.Build(Params{Next: "v", Previous: "v", PaginationID: "i"})
	assert.Error(t, err)

	_, err = spec.Build(Params{Next: "v"})
	assert.Error(t, err)

	_, err = spec.Build(Params{PaginationID: "i"})
	assert.Error(t, err)
}

func TestLenBounds(t *testing.T) {
	spec := testSpec()

	q, err := spec.Build(Params{})
	require.NoError(t, err)
	assert.Equal(t, 100, q.Len())

	q, err = spec.Build(Params{Len: 20000})
	require.NoError(t, err)
	assert.Equal(t, 1000, q.Len())
}

func TestWhereSQLGrouping(t *testing.T) {
	spec := testSpec()

	// Same-column filters OR, different columns AND, OR binds tighter.
	q, err := spec.Build(Params{Filter: []string{
		"status:eq:S", "status:eq:R", "collection:eq:examples",
	}})
	require.NoError(t, err)

	where, args := q.WhereSQL()
	assert.Equal(t, "(collection = ?) AND (status = ? OR status = ?)", where)
	assert.Equal(t, []interface{}{"examples", "S", "R"}, args)
}

func TestCursorAscNext(t *testing.T) {
	spec := testSpec()
	q, err := spec.Build(Params{OrderBy: "name+", Next: "m", PaginationID: "42"})
	require.NoError(t, err)

	cursor, args := q.CursorSQL()
	assert.Equal(t, "name >= ? AND id > ?", cursor)
	assert.Equal(t, []interface{}{"m", "42"}, args)
	assert.Equal(t, "name ASC, id ASC", q.OrderSQL())
	assert.False(t, q.Reversed())
}

func TestCursorAscPrevious(t *testing.T) {
	spec := testSpec()
	q, err := spec.Build(Params{OrderBy: "name+", Previous: "m", PaginationID: "42"})
	require.NoError(t, err)

	// The paired previous form reverses comparators and sort; the result is
	// reversed client-side.
	cursor, _ := q.CursorSQL()
	assert.Equal(t, "name <= ? AND id < ?", cursor)
	assert.Equal(t, "name DESC, id DESC", q.OrderSQL())
	assert.True(t, q.Reversed())
}

func TestCursorDescMirrorsAsc(t *testing.T) {
	spec := testSpec()

	q, err := spec.Build(Params{OrderBy: "name-", Next: "m", PaginationID: "42"})
	require.NoError(t, err)
	cursor, _ := q.CursorSQL()
	assert.Equal(t, "name <= ? AND id < ?", cursor)
	assert.Equal(t, "name DESC, id DESC", q.OrderSQL())

	q, err = spec.Build(Params{OrderBy: "name-", Previous: "m", PaginationID: "42"})
	require.NoError(t, err)
	cursor, _ = q.CursorSQL()
	assert.Equal(t, "name >= ? AND id > ?", cursor)
	assert.Equal(t, "name ASC, id ASC", q.OrderSQL())
}

func TestReverse(t *testing.T) {
	assert.Equal(t, []int{3, 2, 1}, Reverse([]int{1, 2, 3}))
	assert.Equal(t, []int{}, Reverse([]int{}))
}
