package registry

import (
	"encoding/json"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/tableref"
)

// InitialValuesTable is the system state table emitted at a negative
// parameter position when a function declares carried-over state.
const InitialValuesTable = "td-initial-values"

// FunctionDecl is the submitted manifest of a function: its outputs, input
// dependencies and triggers, plus the runtime envelope.
type FunctionDecl struct {
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Snippet       string               `json:"snippet"`
	BundleHash    string               `json:"bundle_hash"`
	RuntimeValues json.RawMessage      `json:"runtime_values"`
	DataLocation  string               `json:"data_location"`
	Decorator     domain.Decorator     `json:"decorator"`
	TransactionBy domain.TransactionBy `json:"transaction_by"`
	MaxRetries    int                  `json:"max_retries"`
	// InitialValues declares a state table carried between runs.
	InitialValues bool `json:"initial_values"`

	Tables       []string `json:"tables"`
	Dependencies []string `json:"dependencies"`
	Triggers     []string `json:"triggers"`
}

// parsedDecl is the declaration after reference resolution-independent
// validation: names checked, refs parsed, defaults applied.
type parsedDecl struct {
	decl     FunctionDecl
	deps     []tableref.Ref
	triggers []tableref.Ref
}

func parseDecl(decl FunctionDecl, defaultCollection string) (*parsedDecl, error) {
	if !tableref.ValidName(decl.Name) {
		return nil, apierr.New(apierr.Invalid, "invalid function name %q", decl.Name)
	}
	seen := map[string]bool{}
	for _, t := range decl.Tables {
		if !tableref.ValidName(t) {
			return nil, apierr.New(apierr.Invalid, "invalid table name %q", t)
		}
		if seen[t] {
			return nil, apierr.New(apierr.Invalid, "duplicate output table %q", t)
		}
		seen[t] = true
	}

	p := &parsedDecl{decl: decl}
	for _, d := range decl.Dependencies {
		ref, err := tableref.Parse(d, defaultCollection)
		if err != nil {
			return nil, err
		}
		p.deps = append(p.deps, ref)
	}
	for _, t := range decl.Triggers {
		ref, err := tableref.Parse(t, defaultCollection)
		if err != nil {
			return nil, err
		}
		if ref.RawVersions != "" {
			return nil, apierr.New(apierr.Invalid, "trigger %q cannot carry versions", t)
		}
		p.triggers = append(p.triggers, ref)
	}

	if p.decl.Decorator == "" {
		p.decl.Decorator = domain.DecoratorTransformer
	}
	if p.decl.TransactionBy == "" {
		p.decl.TransactionBy = domain.TransactionByCollection
	}
	return p, nil
}

// outputs lists the declared output tables in parameter-position order,
// system state table included at its negative position.
func (p *parsedDecl) outputs() []declOutput {
	var outs []declOutput
	if p.decl.InitialValues {
		outs = append(outs, declOutput{name: InitialValuesTable, pos: -1, private: true})
	}
	for i, name := range p.decl.Tables {
		outs = append(outs, declOutput{name: name, pos: i})
	}
	return outs
}

type declOutput struct {
	name    string
	pos     int
	private bool
}
