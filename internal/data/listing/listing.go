package listing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

// Spec is the per-DTO listing declaration: the id column, the natural order
// column, which columns may be sorted and filtered, and the page bounds.
type Spec struct {
	IDColumn   string
	Natural    string
	OrderBy    []string
	Filter     []string
	FilterLike []string
	DefaultLen int
	MaxLen     int
}

// Params are the raw query parameters of a list request.
type Params struct {
	OrderBy      string
	Next         string
	Previous     string
	PaginationID string
	Len          int
	Filter       []string
}

type Order struct {
	Field string
	Desc  bool
}

func (o Order) invert() Order { return Order{Field: o.Field, Desc: !o.Desc} }

func (o Order) direction() string {
	if o.Desc {
		return "DESC"
	}
	return "ASC"
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseOrder parses "<FIELD>[+|-]"; the default direction is ascending.
func ParseOrder(s string) (Order, error) {
	field := s
	desc := false
	if strings.HasSuffix(s, "+") {
		field = strings.TrimSuffix(s, "+")
	} else if strings.HasSuffix(s, "-") {
		field = strings.TrimSuffix(s, "-")
		desc = true
	}
	if !identRe.MatchString(field) {
		return Order{}, apierr.New(apierr.Invalid, "invalid order-by value, it must be <NAME>+/-: %q", s)
	}
	return Order{Field: field, Desc: desc}, nil
}

type Op string

const (
	OpEq  Op = ":eq:"
	OpNe  Op = ":ne:"
	OpGt  Op = ":gt:"
	OpGe  Op = ":ge:"
	OpLt  Op = ":lt:"
	OpLe  Op = ":le:"
	OpLk  Op = ":lk:"
	OpBtw Op = ":btw:"
)

var allOps = []Op{OpBtw, OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpLk}

func (o Op) sql() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpLk:
		return "LIKE"
	case OpBtw:
		return "BETWEEN"
	}
	return ""
}

type Condition struct {
	Field string
	Op    Op
	Value string
	// Max is the upper bound of a between condition.
	Max string
}

// ParseCondition parses "<col><op><value>". Like values use '*' as the
// wildcard (URLs cannot carry '%'); between values are "<min>::<max>".
func ParseCondition(s string) (Condition, error) {
	for _, op := range allOps {
		idx := strings.Index(s, string(op))
		if idx <= 0 {
			continue
		}
		field := s[:idx]
		value := s[idx+len(op):]
		if !identRe.MatchString(field) {
			break
		}
		c := Condition{Field: field, Op: op, Value: value}
		switch op {
		case OpLk:
			c.Value = strings.ReplaceAll(value, "*", "%")
		case OpBtw:
			minMax := strings.SplitN(value, "::", 2)
			if len(minMax) != 2 {
				return Condition{}, apierr.New(apierr.Invalid, "invalid between condition %q, it must be <NAME>:btw:<min>::<max>", s)
			}
			c.Value, c.Max = minMax[0], minMax[1]
		}
		return c, nil
	}
	return Condition{}, apierr.New(apierr.Invalid, "invalid condition value, it must be <NAME><OPERATOR><VALUE>: %q", s)
}

// Query is a validated list query ready to apply to a gorm handle.
type Query struct {
	spec       Spec
	len        int
	conditions map[string][]Condition
	order      Order
	prev       bool
	next       bool
	cursorVal  string
	cursorID   string
}

// Build validates params against the spec. Same-column filters OR together,
// different columns AND, OR binding tighter.
func (s Spec) Build(p Params) (*Query, error) {
	q := &Query{spec: s, conditions: map[string][]Condition{}}

	q.len = p.Len
	if q.len <= 0 {
		q.len = s.DefaultLen
	}
	if s.MaxLen > 0 && q.len > s.MaxLen {
		q.len = s.MaxLen
	}

	for _, f := range p.Filter {
		c, err := ParseCondition(f)
		if err != nil {
			return nil, err
		}
		if c.Op == OpLk {
			if !contains(s.FilterLike, c.Field) {
				return nil, apierr.New(apierr.Invalid, "undefined like filter: %s", c.Field)
			}
		} else if !contains(s.Filter, c.Field) {
			return nil, apierr.New(apierr.Invalid, "undefined filter: %s", c.Field)
		}
		q.conditions[c.Field] = append(q.conditions[c.Field], c)
	}

	q.order = Order{Field: s.Natural}
	if p.OrderBy != "" {
		o, err := ParseOrder(p.OrderBy)
		if err != nil {
			return nil, err
		}
		if !contains(s.OrderBy, o.Field) {
			return nil, apierr.New(apierr.Invalid, "undefined order by: %s", o.Field)
		}
		q.order = o
	}

	switch {
	case p.Next != "" && p.Previous != "":
		return nil, apierr.New(apierr.Invalid, "previous and next parameters cannot be used together")
	case (p.Next != "" || p.Previous != "") && p.PaginationID == "":
		return nil, apierr.New(apierr.Invalid, "id must be used in pagination with previous or next parameters")
	case p.Next == "" && p.Previous == "" && p.PaginationID != "":
		return nil, apierr.New(apierr.Invalid, "id requires a previous or next parameter")
	case p.Next != "":
		q.next = true
		q.cursorVal = p.Next
	case p.Previous != "":
		q.prev = true
		q.cursorVal = p.Previous
	}
	q.cursorID = p.PaginationID

	return q, nil
}

// WhereSQL renders the filter conditions as one SQL fragment plus args.
// Deterministic field order keeps the expansion stable for equal inputs.
func (q *Query) WhereSQL() (string, []interface{}) {
	fields := make([]string, 0, len(q.conditions))
	for f := range q.conditions {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var ands []string
	var args []interface{}
	for _, f := range fields {
		var ors []string
		for _, c := range q.conditions[f] {
			if c.Op == OpBtw {
				ors = append(ors, fmt.Sprintf("%s BETWEEN ? AND ?", c.Field))
				args = append(args, c.Value, c.Max)
			} else {
				ors = append(ors, fmt.Sprintf("%s %s ?", c.Field, c.Op.sql()))
				args = append(args, c.Value)
			}
		}
		ands = append(ands, "("+strings.Join(ors, " OR ")+")")
	}
	return strings.Join(ands, " AND "), args
}

// CursorSQL renders the pagination comparators. The previous form reverses
// comparators and sort; callers must reverse the result rows when Reversed
// reports true.
func (q *Query) CursorSQL() (string, []interface{}) {
	if !q.next && !q.prev {
		return "", nil
	}
	effective := q.order
	if q.prev {
		effective = effective.invert()
	}
	colCmp, idCmp := ">=", ">"
	if effective.Desc {
		colCmp, idCmp = "<=", "<"
	}
	sql := fmt.Sprintf("%s %s ? AND %s %s ?", effective.Field, colCmp, q.spec.IDColumn, idCmp)
	return sql, []interface{}{q.cursorVal, q.cursorID}
}

// OrderSQL renders the stable (order column, id) ordering.
func (q *Query) OrderSQL() string {
	effective := q.order
	if q.prev {
		effective = effective.invert()
	}
	return fmt.Sprintf("%s %s, %s %s", effective.Field, effective.direction(), q.spec.IDColumn, effective.direction())
}

// Reversed reports whether the caller must reverse the result slice to
// restore the requested order (previous-page reads run inverted).
func (q *Query) Reversed() bool { return q.prev }

func (q *Query) Len() int { return q.len }

// Apply attaches where, cursor, order and limit to a gorm handle.
func (q *Query) Apply(db *gorm.DB) *gorm.DB {
	if where, args := q.WhereSQL(); where != "" {
		db = db.Where(where, args...)
	}
	if cursor, args := q.CursorSQL(); cursor != "" {
		db = db.Where(cursor, args...)
	}
	return db.Order(q.OrderSQL()).Limit(q.len)
}

// Reverse restores requested order after a previous-page read.
func Reverse[T any](rows []T) []T {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
