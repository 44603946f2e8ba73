package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsdata/tabsdata-server/internal/depexpr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

// fakeTimeline indexes versions newest first; committed marks which of them
// the committed walk sees.
type fakeTimeline struct {
	versions  []string
	committed []bool
}

func (f *fakeTimeline) At(offset int, committedOnly bool) (string, error) {
	if !committedOnly {
		if offset < len(f.versions) {
			return f.versions[offset], nil
		}
		return "", nil
	}
	seen := 0
	for i, v := range f.versions {
		if !f.committed[i] {
			continue
		}
		if seen == offset {
			return v, nil
		}
		seen++
	}
	return "", nil
}

func (f *fakeTimeline) Fixed(id string) (int, error) {
	for i, v := range f.versions {
		if v == id {
			return i, nil
		}
	}
	return 0, apierr.New(apierr.NotFound, "data version %s", id)
}

func parse(t *testing.T, expr string) depexpr.Versions {
	t.Helper()
	vs, err := depexpr.Parse(expr)
	require.NoError(t, err)
	return vs
}

func TestResolveHeadAndHistory(t *testing.T) {
	// V2 is the head, V1 one back, both committed.
	tl := &fakeTimeline{versions: []string{"V2", "V1"}, committed: []bool{true, true}}

	got, err := ResolveVersions(parse(t, "HEAD,HEAD^1"), tl, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Resolved{VersionPos: 0, DataVersionID: "V2"}, got[0])
	assert.Equal(t, Resolved{VersionPos: 1, DataVersionID: "V1"}, got[1])
}

func TestResolveMissingHistoryIsNull(t *testing.T) {
	tl := &fakeTimeline{versions: []string{"V1"}, committed: []bool{true}}

	got, err := ResolveVersions(parse(t, "HEAD,HEAD^1"), tl, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "V1", got[0].DataVersionID)
	assert.Equal(t, "", got[1].DataVersionID)
	assert.Equal(t, 1, got[1].VersionPos)
}

func TestResolvePlannedForwardReference(t *testing.T) {
	tl := &fakeTimeline{versions: []string{"V2", "V1"}, committed: []bool{true, true}}

	// The execution allocates NEW for this table: HEAD resolves forward,
	// HEAD^1 shifts onto the current catalog head.
	got, err := ResolveVersions(parse(t, "HEAD,HEAD^1"), tl, "NEW")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Resolved{VersionPos: 0, DataVersionID: "NEW", Planned: true}, got[0])
	assert.Equal(t, Resolved{VersionPos: 1, DataVersionID: "V2"}, got[1])
}

func TestResolveCommittedWalkSkipsUncommitted(t *testing.T) {
	// Head version not committed yet; HEAD~1 sees the committed one below
	// the committed head.
	tl := &fakeTimeline{versions: []string{"V3", "V2", "V1"}, committed: []bool{false, true, true}}

	got, err := ResolveVersions(parse(t, "HEAD~1"), tl, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "V1", got[0].DataVersionID)

	// The committed walk ignores the planned forward version too.
	got, err = ResolveVersions(parse(t, "HEAD~1"), tl, "NEW")
	require.NoError(t, err)
	assert.Equal(t, "V1", got[0].DataVersionID)
}

func TestResolveRange(t *testing.T) {
	tl := &fakeTimeline{versions: []string{"V3", "V2", "V1"}, committed: []bool{true, true, true}}

	got, err := ResolveVersions(parse(t, "HEAD^2..HEAD"), tl, "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// from -> to order: older first.
	assert.Equal(t, "V1", got[0].DataVersionID)
	assert.Equal(t, "V2", got[1].DataVersionID)
	assert.Equal(t, "V3", got[2].DataVersionID)
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].VersionPos, got[1].VersionPos, got[2].VersionPos})
}

func TestResolveFixedUnknownRejected(t *testing.T) {
	tl := &fakeTimeline{}
	v := depexpr.Versions{List: []depexpr.Version{{Fixed: "01890000-0000-7000-8000-000000000000"}}}
	_, err := ResolveVersions(v, tl, "")
	assert.Error(t, err)
}
