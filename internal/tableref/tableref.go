// Package tableref parses table references as written in function
// declarations: "[collection/]table[@versions]". The collection defaults to
// the one the function is being registered into. Table names starting with
// a dot refer to system tables.
package tableref

import (
	"regexp"
	"strings"

	"github.com/tabsdata/tabsdata-server/internal/depexpr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

var nameRe = regexp.MustCompile(`^\.?[A-Za-z_][A-Za-z0-9_-]*$`)

type Ref struct {
	Collection string
	Table      string
	Versions   depexpr.Versions
	// RawVersions preserves the expression exactly as submitted; it is what
	// the catalog stores on the dependency version.
	RawVersions string
}

func (r Ref) System() bool { return strings.HasPrefix(r.Table, ".") }

func (r Ref) String() string {
	s := r.Table
	if r.Collection != "" {
		s = r.Collection + "/" + r.Table
	}
	if r.RawVersions != "" {
		s += "@" + r.RawVersions
	}
	return s
}

// Parse parses a reference, defaulting the collection. An empty versions
// suffix means HEAD.
func Parse(ref, defaultCollection string) (Ref, error) {
	rest := strings.TrimPrefix(strings.TrimSpace(ref), "td:///")
	if rest == "" {
		return Ref{}, apierr.New(apierr.Invalid, "empty table reference")
	}

	raw := ""
	if base, versions, ok := strings.Cut(rest, "@"); ok {
		rest, raw = base, versions
	}
	versions, err := depexpr.Parse(raw)
	if err != nil {
		return Ref{}, err
	}

	collection := defaultCollection
	table := rest
	if c, t, ok := strings.Cut(rest, "/"); ok {
		collection, table = c, t
		if strings.Contains(table, "/") {
			return Ref{}, apierr.New(apierr.Invalid, "invalid table reference %q", ref)
		}
	}
	if !nameRe.MatchString(table) {
		return Ref{}, apierr.New(apierr.Invalid, "invalid table name %q", table)
	}
	if collection != "" && !nameRe.MatchString(collection) {
		return Ref{}, apierr.New(apierr.Invalid, "invalid collection name %q", collection)
	}

	return Ref{Collection: collection, Table: table, Versions: versions, RawVersions: raw}, nil
}

// ValidName reports whether s is a legal collection/function/table name.
func ValidName(s string) bool {
	return nameRe.MatchString(s) && !strings.HasPrefix(s, ".")
}
