package planner

import (
	"github.com/tabsdata/tabsdata-server/internal/depexpr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

// Timeline walks the effective history of one table: the ordered sequence
// of its data versions with has_data = true, newest first. The committed
// walk sees only versions whose producing run already committed.
type Timeline interface {
	// At returns the data version id offset entries back from head, or ""
	// when the history is shorter.
	At(offset int, committedOnly bool) (string, error)
	// Fixed verifies a fixed data version id belongs to this table and
	// returns its offset back from head.
	Fixed(id string) (int, error)
}

// Resolved is one expanded selector of a table_versions expression.
// DataVersionID is empty when no such historical version exists; the run is
// then invoked with a null input slot.
type Resolved struct {
	VersionPos    int
	DataVersionID string
	// Planned marks a forward reference to a data version allocated in the
	// execution being planned.
	Planned bool
}

// ResolveVersions expands a parsed expression against a timeline.
// plannedID, when non-empty, is the data version this execution will itself
// produce for the table; it becomes the new head, shifting relative
// selectors by one.
func ResolveVersions(vs depexpr.Versions, tl Timeline, plannedID string) ([]Resolved, error) {
	if vs.IsRange() {
		return resolveRange(vs, tl, plannedID)
	}

	var out []Resolved
	for pos, v := range vs.Flatten() {
		r, err := resolveOne(v, tl, plannedID)
		if err != nil {
			return nil, err
		}
		r.VersionPos = pos
		out = append(out, r)
	}
	return out, nil
}

func resolveOne(v depexpr.Version, tl Timeline, plannedID string) (Resolved, error) {
	if v.IsFixed() {
		if _, err := tl.Fixed(v.Fixed); err != nil {
			return Resolved{}, err
		}
		return Resolved{DataVersionID: v.Fixed}, nil
	}

	offset := -v.Back
	if plannedID != "" && !v.CommittedOnly {
		// The planned version is the forthcoming head of the regular walk.
		if offset == 0 {
			return Resolved{DataVersionID: plannedID, Planned: true}, nil
		}
		offset--
	}
	id, err := tl.At(offset, v.CommittedOnly)
	if err != nil {
		return Resolved{}, err
	}
	// Missing history is not an error; the requirement stays null.
	return Resolved{DataVersionID: id}, nil
}

func resolveRange(vs depexpr.Versions, tl Timeline, plannedID string) ([]Resolved, error) {
	from, to := *vs.RangeLo, *vs.RangeHi

	fromOff, err := rangeOffset(from, tl)
	if err != nil {
		return nil, err
	}
	toOff, err := rangeOffset(to, tl)
	if err != nil {
		return nil, err
	}
	if fromOff < toOff {
		return nil, apierr.New(apierr.Invalid, "decreasing version range: %s", vs.String())
	}

	committedOnly := from.CommittedOnly || to.CommittedOnly
	var out []Resolved
	pos := 0
	// Expand inclusively in from -> to order (older to newer).
	for off := fromOff; off >= toOff; off-- {
		r, err := resolveOne(depexpr.Version{Back: -off, CommittedOnly: committedOnly}, tl, plannedID)
		if err != nil {
			return nil, err
		}
		r.VersionPos = pos
		pos++
		out = append(out, r)
	}
	return out, nil
}

func rangeOffset(v depexpr.Version, tl Timeline) (int, error) {
	if !v.IsFixed() {
		return -v.Back, nil
	}
	return tl.Fixed(v.Fixed)
}
