// Package planner expands a trigger on a function into the full shape of an
// execution: the downstream runs, their transactions, output slots and
// resolved input requirements. Planning commits that shape eagerly, so
// scheduling afterwards is a pure function of present data-version
// statuses; nothing is replanned unless the execution is canceled.
package planner

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/depexpr"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type Planner struct {
	cat *catalog.Catalog
	log *logger.Logger
}

func New(cat *catalog.Catalog, baseLog *logger.Logger) *Planner {
	return &Planner{cat: cat, log: baseLog.With("component", "Planner")}
}

// TriggerRequest identifies the initiating function version and caller.
type TriggerRequest struct {
	FunctionVersionID string
	Name              *string
	TriggeredByID     string
}

// Plan persists the execution plan atomically and returns the execution.
func (p *Planner) Plan(ctx context.Context, req TriggerRequest) (*domain.Execution, error) {
	var execution *domain.Execution
	err := p.cat.InTx(ctx, func(dbc dbctx.Context) error {
		e, err := p.plan(dbc, req)
		if err != nil {
			return err
		}
		execution = e
		return nil
	})
	return execution, err
}

type planNode struct {
	fv      *domain.FunctionVersion
	outputs []*domain.Table
}

func (p *Planner) plan(dbc dbctx.Context, req TriggerRequest) (*domain.Execution, error) {
	fv0, err := p.cat.Functions.GetVersion(dbc, req.FunctionVersionID)
	if err != nil {
		return nil, err
	}
	if fv0.Status != domain.VersionActive {
		return nil, apierr.New(apierr.PreconditionFailed, "function version %s is not active", fv0.ID)
	}

	nodes, graph, err := p.closure(dbc, fv0)
	if err != nil {
		return nil, err
	}
	order, err := graph.TopoOrder()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution := &domain.Execution{
		ID:                ids.New(),
		Name:              req.Name,
		CollectionID:      fv0.CollectionID,
		FunctionID:        fv0.FunctionID,
		FunctionVersionID: fv0.ID,
		TriggeredByID:     req.TriggeredByID,
		TriggeredOn:       now,
	}
	if err := p.cat.Executions.Create(dbc, execution); err != nil {
		return nil, err
	}

	// Group runs into transactions by the declared grouping key.
	trxByKey := map[string]*domain.Transaction{}
	var trxs []*domain.Transaction
	trxFor := func(fv *domain.FunctionVersion) *domain.Transaction {
		by := fv.TransactionBy
		if by == "" {
			by = domain.TransactionByCollection
		}
		key := fv.CollectionID
		if by == domain.TransactionByFunction {
			key = fv.FunctionID
		}
		mapKey := string(by) + ":" + key
		if trx, ok := trxByKey[mapKey]; ok {
			return trx
		}
		trx := &domain.Transaction{
			ID:             ids.New(),
			ExecutionID:    execution.ID,
			TransactionBy:  by,
			TransactionKey: key,
			TriggeredOn:    now,
		}
		trxByKey[mapKey] = trx
		trxs = append(trxs, trx)
		return trx
	}

	var runs []*domain.FunctionRun
	runByFn := map[string]*domain.FunctionRun{}
	for _, fnID := range order {
		node := nodes[fnID]
		trx := trxFor(node.fv)
		trigger := domain.TriggerDependency
		if node.fv.ID == fv0.ID {
			trigger = domain.TriggerManual
		}
		run := &domain.FunctionRun{
			ID:                ids.New(),
			CollectionID:      node.fv.CollectionID,
			FunctionID:        node.fv.FunctionID,
			FunctionVersionID: node.fv.ID,
			ExecutionID:       execution.ID,
			TransactionID:     trx.ID,
			Trigger:           trigger,
			Status:            domain.RunScheduled,
			TriggeredOn:       now,
		}
		runs = append(runs, run)
		runByFn[fnID] = run
	}
	if err := p.cat.Executions.CreateTransactions(dbc, trxs); err != nil {
		return nil, err
	}
	if err := p.cat.Runs.Create(dbc, runs); err != nil {
		return nil, err
	}

	// One output slot per declared table, system outputs included.
	plannedByTable := map[string]string{}
	var versions []*domain.TableDataVersion
	for _, fnID := range order {
		node := nodes[fnID]
		run := runByFn[fnID]
		for _, table := range node.outputs {
			tdv := &domain.TableDataVersion{
				ID:               ids.New(),
				CollectionID:     table.CollectionID,
				TableID:          table.ID,
				TableVersionID:   table.TableVersionID,
				ExecutionID:      execution.ID,
				TransactionID:    run.TransactionID,
				FunctionRunID:    run.ID,
				FunctionParamPos: table.FunctionParamPos,
				Partitioned:      table.Partitioned,
				TriggeredOn:      now,
			}
			versions = append(versions, tdv)
			plannedByTable[table.ID] = tdv.ID
		}
	}
	if err := p.cat.DataVersions.Create(dbc, versions); err != nil {
		return nil, err
	}

	var requirements []*domain.FunctionRequirement
	for _, fnID := range order {
		node := nodes[fnID]
		run := runByFn[fnID]
		deps, err := p.cat.Tables.ActiveDependencyVersions(dbc, node.fv.ID)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			vs, err := depexpr.Parse(dep.TableVersions)
			if err != nil {
				return nil, err
			}
			table, err := p.cat.Tables.GetByID(dbc, dep.TableID)
			if err != nil {
				return nil, err
			}
			tl := &catalogTimeline{cat: p.cat, dbc: dbc, tableID: dep.TableID}
			resolved, err := ResolveVersions(vs, tl, plannedByTable[dep.TableID])
			if err != nil {
				return nil, err
			}
			for _, r := range resolved {
				req := &domain.FunctionRequirement{
					ID:                        ids.New(),
					CollectionID:              run.CollectionID,
					ExecutionID:               execution.ID,
					TransactionID:             run.TransactionID,
					FunctionRunID:             run.ID,
					DepPos:                    dep.DepPos,
					VersionPos:                r.VersionPos,
					RequirementTableID:        dep.TableID,
					RequirementTableVersionID: table.TableVersionID,
				}
				if r.DataVersionID != "" {
					id := r.DataVersionID
					req.RequirementTableDataVersionID = &id
				}
				requirements = append(requirements, req)
			}
		}
	}
	if err := p.cat.Requirements.Create(dbc, requirements); err != nil {
		return nil, err
	}

	p.log.Info("planned execution",
		"execution_id", execution.ID,
		"functions", len(runs),
		"transactions", len(trxs),
		"requirements", len(requirements),
	)
	return execution, nil
}

// closure walks trigger edges (not data-dependency edges) from the
// initiating function version.
func (p *Planner) closure(dbc dbctx.Context, fv0 *domain.FunctionVersion) (map[string]*planNode, *Graph, error) {
	nodes := map[string]*planNode{}
	graph := NewGraph()

	load := func(fv *domain.FunctionVersion) (*planNode, error) {
		if n, ok := nodes[fv.FunctionID]; ok {
			return n, nil
		}
		outputs, err := p.cat.Tables.ListByFunction(dbc, fv.FunctionID)
		if err != nil {
			return nil, err
		}
		n := &planNode{fv: fv, outputs: outputs}
		nodes[fv.FunctionID] = n
		graph.AddNode(fv.FunctionID)
		return n, nil
	}

	root, err := load(fv0)
	if err != nil {
		return nil, nil, err
	}

	frontier := []*planNode{root}
	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]

		tableIDs := make([]string, 0, len(node.outputs))
		for _, t := range node.outputs {
			tableIDs = append(tableIDs, t.ID)
		}
		triggers, err := p.cat.Tables.ActiveTriggersOnTables(dbc, tableIDs)
		if err != nil {
			return nil, nil, err
		}
		for _, tv := range triggers {
			fv, err := p.cat.Functions.GetVersion(dbc, tv.FunctionVersionID)
			if err != nil {
				return nil, nil, err
			}
			if fv.Status != domain.VersionActive {
				continue
			}
			_, seen := nodes[fv.FunctionID]
			consumer, err := load(fv)
			if err != nil {
				return nil, nil, err
			}
			graph.AddEdge(node.fv.FunctionID, fv.FunctionID)
			if !seen {
				frontier = append(frontier, consumer)
			}
		}
	}
	return nodes, graph, nil
}

// catalogTimeline adapts the data-version repo to the Timeline interface
// for one table.
type catalogTimeline struct {
	cat     *catalog.Catalog
	dbc     dbctx.Context
	tableID string
}

func (t *catalogTimeline) At(offset int, committedOnly bool) (string, error) {
	versions, err := t.cat.DataVersions.Timeline(t.dbc, t.tableID, committedOnly, 1, offset)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", nil
	}
	return versions[0].ID, nil
}

func (t *catalogTimeline) Fixed(id string) (int, error) {
	tdv, err := t.cat.DataVersions.GetByID(t.dbc, id)
	if err != nil {
		return 0, err
	}
	if tdv.TableID != t.tableID {
		return 0, apierr.New(apierr.Invalid, "data version %s does not belong to table %s", id, t.tableID)
	}
	return t.cat.DataVersions.TimelineOffset(t.dbc, t.tableID, id)
}
