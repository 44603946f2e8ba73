package service

import (
	"context"

	"gorm.io/datatypes"

	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
)

// Listing declarations per paginatable DTO: id column, natural order,
// sortable, filterable and like-filterable sets, page bounds.
var (
	collectionsSpec = listing.Spec{
		IDColumn: "id", Natural: "name",
		OrderBy:    []string{"name", "created_on"},
		Filter:     []string{"name"},
		FilterLike: []string{"name"},
		DefaultLen: 100, MaxLen: 1000,
	}
	functionsSpec = listing.Spec{
		IDColumn: "id", Natural: "name",
		OrderBy:    []string{"name", "created_on"},
		Filter:     []string{"name"},
		FilterLike: []string{"name"},
		DefaultLen: 100, MaxLen: 1000,
	}
	executionsSpec = listing.Spec{
		IDColumn: "id", Natural: "triggered_on",
		OrderBy:    []string{"triggered_on", "name", "collection", "function"},
		Filter:     []string{"name", "collection", "function", "triggered_by_id"},
		FilterLike: []string{"name", "function"},
		DefaultLen: 100, MaxLen: 1000,
	}
	transactionsSpec = listing.Spec{
		IDColumn: "id", Natural: "triggered_on",
		OrderBy:    []string{"triggered_on", "execution_id"},
		Filter:     []string{"execution_id", "transaction_by", "transaction_key"},
		FilterLike: []string{},
		DefaultLen: 100, MaxLen: 1000,
	}
	functionRunsSpec = listing.Spec{
		IDColumn: "id", Natural: "triggered_on",
		OrderBy:    []string{"triggered_on", "status", "function", "collection"},
		Filter:     []string{"status", "execution_id", "transaction_id", "collection", "function"},
		FilterLike: []string{"function"},
		DefaultLen: 100, MaxLen: 1000,
	}
	tablesSpec = listing.Spec{
		IDColumn: "id", Natural: "name",
		OrderBy:    []string{"name", "created_on"},
		Filter:     []string{"name", "function_id"},
		FilterLike: []string{"name"},
		DefaultLen: 100, MaxLen: 1000,
	}
	dataVersionsSpec = listing.Spec{
		IDColumn: "id", Natural: "triggered_on",
		OrderBy:    []string{"triggered_on", "function"},
		Filter:     []string{"execution_id", "transaction_id", "function_run_id", "has_data"},
		FilterLike: []string{},
		DefaultLen: 100, MaxLen: 1000,
	}
)

func (c *Core) ListCollections(ctx context.Context, p listing.Params) ([]*domain.Collection, error) {
	q, err := collectionsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Collections.List(dbctx.New(ctx), q)
}

func (c *Core) ListFunctions(ctx context.Context, collection string, p listing.Params) ([]*domain.Function, error) {
	coll, err := c.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	q, err := functionsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Functions.List(dbctx.New(ctx), coll.ID, q)
}

func (c *Core) ListExecutions(ctx context.Context, p listing.Params) ([]*domain.Execution, error) {
	q, err := executionsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Executions.List(dbctx.New(ctx), q)
}

func (c *Core) ListTransactions(ctx context.Context, p listing.Params) ([]*domain.Transaction, error) {
	q, err := transactionsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Executions.ListTransactions(dbctx.New(ctx), q)
}

func (c *Core) ListFunctionRuns(ctx context.Context, p listing.Params) ([]*domain.FunctionRun, error) {
	q, err := functionRunsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Runs.List(dbctx.New(ctx), q)
}

func (c *Core) ListTables(ctx context.Context, collection string, p listing.Params) ([]*domain.Table, error) {
	coll, err := c.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	q, err := tablesSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.Tables.List(dbctx.New(ctx), coll.ID, q)
}

func (c *Core) ListTableDataVersions(ctx context.Context, collection, table string, p listing.Params) ([]*domain.TableDataVersion, error) {
	coll, err := c.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	t, err := c.cat.Tables.GetByName(dbctx.New(ctx), coll.ID, table)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apierr.New(apierr.NotFound, "table %q not found in collection %q", table, collection)
	}
	q, err := dataVersionsSpec.Build(p)
	if err != nil {
		return nil, err
	}
	return c.cat.DataVersions.ListByTable(dbctx.New(ctx), t.ID, q)
}

// ExecutionView decorates an execution with its rolled-up status.
type ExecutionView struct {
	*domain.Execution
	Status domain.ExecutionStatus `json:"status"`
}

func (c *Core) GetExecution(ctx context.Context, executionID string) (*ExecutionView, error) {
	dbc := dbctx.New(ctx)
	execution, err := c.cat.Executions.GetByID(dbc, executionID)
	if err != nil {
		return nil, err
	}
	runs, err := c.cat.Runs.ListByExecution(dbc, executionID)
	if err != nil {
		return nil, err
	}
	statuses := make([]domain.FunctionRunStatus, len(runs))
	for i, r := range runs {
		statuses[i] = r.Status
	}
	return &ExecutionView{Execution: execution, Status: commit.ExecutionStatus(statuses)}, nil
}

// TransactionView decorates a transaction with its rolled-up status.
type TransactionView struct {
	*domain.Transaction
	Status domain.TransactionStatus `json:"status"`
}

func (c *Core) GetTransaction(ctx context.Context, transactionID string) (*TransactionView, error) {
	dbc := dbctx.New(ctx)
	trx, err := c.cat.Executions.GetTransaction(dbc, transactionID)
	if err != nil {
		return nil, err
	}
	runs, err := c.cat.Runs.ListByTransaction(dbc, transactionID)
	if err != nil {
		return nil, err
	}
	statuses := make([]domain.FunctionRunStatus, len(runs))
	for i, r := range runs {
		statuses[i] = r.Status
	}
	return &TransactionView{Transaction: trx, Status: commit.TransactionStatus(statuses)}, nil
}

// ListExecutionTransactions lists a single execution's transactions with
// their rollups; what the CLI's exec list-trxs renders.
func (c *Core) ListExecutionTransactions(ctx context.Context, executionID string) ([]*TransactionView, error) {
	dbc := dbctx.New(ctx)
	trxs, err := c.cat.Executions.ListTransactionsByExecution(dbc, executionID)
	if err != nil {
		return nil, err
	}
	if len(trxs) == 0 {
		return nil, apierr.New(apierr.NotFound, "execution %s not found", executionID)
	}
	out := make([]*TransactionView, 0, len(trxs))
	for _, trx := range trxs {
		view, err := c.GetTransaction(ctx, trx.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// TableSchema returns the stored schema envelope of a table's current
// version.
func (c *Core) TableSchema(ctx context.Context, collection, table string) (datatypes.JSON, error) {
	coll, err := c.requireCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.New(ctx)
	t, err := c.cat.Tables.GetByName(dbc, coll.ID, table)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apierr.New(apierr.NotFound, "table %q not found in collection %q", table, collection)
	}
	tv, err := c.cat.Tables.GetVersion(dbc, t.TableVersionID)
	if err != nil {
		return nil, err
	}
	return tv.Schema, nil
}

func (c *Core) requireCollection(ctx context.Context, name string) (*domain.Collection, error) {
	coll, err := c.cat.Collections.GetActiveByName(dbctx.New(ctx), name)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, apierr.New(apierr.NotFound, "collection %q not found", name)
	}
	return coll, nil
}
