// Package depexpr parses table_versions expressions carried on dependency
// edges. The grammar:
//
//	Expr     := Range | Selector ("," Selector)*
//	Selector := "HEAD" | "HEAD" ("~"|"^") INT? | "HEAD" "^"... | FIXED_ID
//	Range    := Selector ".." Selector
//
// HEAD~k selects the k-th earlier committed version; HEAD^k the k-th earlier
// version regardless of commit. A bare "~" or "^" counts as one step, and
// repeated carets accumulate (HEAD^^ == HEAD^2).
package depexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
)

// Version is a single selector: either relative to HEAD or a fixed data
// version id. Back is zero or negative as parsed (Shift can raise it);
// CommittedOnly marks the "~" walk.
type Version struct {
	Fixed         string
	Back          int
	CommittedOnly bool
}

func (v Version) IsFixed() bool { return v.Fixed != "" }

func (v Version) String() string {
	if v.IsFixed() {
		return v.Fixed
	}
	if v.Back == 0 {
		return "HEAD"
	}
	if v.CommittedOnly {
		return fmt.Sprintf("HEAD~%d", -v.Back)
	}
	return fmt.Sprintf("HEAD^%d", -v.Back)
}

// Shift adds pos to the Back of relative selectors, so a positive pos moves
// them toward newer versions (HEAD^1 shifted by 1 becomes HEAD). Fixed
// selectors are untouched.
func (v *Version) Shift(pos int) {
	if !v.IsFixed() {
		v.Back += pos
	}
}

// Versions is a parsed expression: a single selector, an explicit list, or
// an inclusive range.
type Versions struct {
	List    []Version
	RangeLo *Version
	RangeHi *Version
}

func (vs Versions) IsRange() bool { return vs.RangeLo != nil }

// Flatten returns the ordered selector list of a non-range expression.
func (vs Versions) Flatten() []Version { return vs.List }

func (vs *Versions) Shift(pos int) {
	for i := range vs.List {
		vs.List[i].Shift(pos)
	}
	if vs.RangeLo != nil {
		vs.RangeLo.Shift(pos)
		vs.RangeHi.Shift(pos)
	}
}

func (vs Versions) String() string {
	if vs.IsRange() {
		return vs.RangeLo.String() + ".." + vs.RangeHi.String()
	}
	parts := make([]string, len(vs.List))
	for i, v := range vs.List {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

// Parse parses a table_versions expression. Ambiguous or unknown tokens are
// Invalid.
func Parse(expr string) (Versions, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Versions{List: []Version{{Back: 0}}}, nil
	}

	if lo, hi, ok := strings.Cut(expr, ".."); ok {
		from, err := parseSelector(lo)
		if err != nil {
			return Versions{}, err
		}
		to, err := parseSelector(hi)
		if err != nil {
			return Versions{}, err
		}
		if !from.IsFixed() && !to.IsFixed() && from.Back > to.Back {
			return Versions{}, apierr.New(apierr.Invalid, "decreasing version range: %s", expr)
		}
		// A bare HEAD bound is neutral; only explicit opposing walks clash.
		if from.Back < 0 && to.Back < 0 && from.CommittedOnly != to.CommittedOnly {
			return Versions{}, apierr.New(apierr.Invalid, "mixed committed and uncommitted range bounds: %s", expr)
		}
		return Versions{RangeLo: &from, RangeHi: &to}, nil
	}

	var list []Version
	for _, tok := range strings.Split(expr, ",") {
		v, err := parseSelector(tok)
		if err != nil {
			return Versions{}, err
		}
		list = append(list, v)
	}
	return Versions{List: list}, nil
}

func parseSelector(tok string) (Version, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Version{}, apierr.New(apierr.Invalid, "empty version selector")
	}
	if tok == "HEAD" {
		return Version{Back: 0}, nil
	}
	if rest, ok := strings.CutPrefix(tok, "HEAD^"); ok {
		// Caret walks every version. Accept HEAD^, HEAD^^..., HEAD^k.
		if rest == "" {
			return Version{Back: -1}, nil
		}
		if strings.Trim(rest, "^") == "" {
			return Version{Back: -(len(rest) + 1)}, nil
		}
		k, err := strconv.Atoi(rest)
		if err != nil || k < 0 {
			return Version{}, apierr.New(apierr.Invalid, "invalid version selector %q, it must be HEAD, HEAD^..., HEAD~# or a fixed version", tok)
		}
		return Version{Back: -k}, nil
	}
	if rest, ok := strings.CutPrefix(tok, "HEAD~"); ok {
		// Tilde walks committed versions only.
		if rest == "" {
			return Version{Back: -1, CommittedOnly: true}, nil
		}
		k, err := strconv.Atoi(rest)
		if err != nil || k < 0 {
			return Version{}, apierr.New(apierr.Invalid, "invalid version selector %q, it must be HEAD, HEAD^..., HEAD~# or a fixed version", tok)
		}
		return Version{Back: -k, CommittedOnly: true}, nil
	}
	if ids.Valid(tok) {
		return Version{Fixed: tok}, nil
	}
	return Version{}, apierr.New(apierr.Invalid, "invalid version selector %q, it must be HEAD, HEAD^..., HEAD~# or a fixed version", tok)
}
