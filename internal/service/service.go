// Package service exposes the execution core to the REST layer: thin
// operations that validate, delegate and translate, with no business logic
// of their own beyond that.
package service

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/dispatcher"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/notify"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/planner"
	"github.com/tabsdata/tabsdata-server/internal/registry"
)

type Core struct {
	cat      *catalog.Catalog
	log      *logger.Logger
	reg      *registry.Registry
	plan     *planner.Planner
	disp     *dispatcher.Dispatcher
	engine   *commit.Engine
	notifier notify.Notifier
}

func NewCore(
	cat *catalog.Catalog,
	baseLog *logger.Logger,
	reg *registry.Registry,
	plan *planner.Planner,
	disp *dispatcher.Dispatcher,
	engine *commit.Engine,
	notifier notify.Notifier,
) *Core {
	return &Core{
		cat:      cat,
		log:      baseLog.With("component", "Core"),
		reg:      reg,
		plan:     plan,
		disp:     disp,
		engine:   engine,
		notifier: notifier,
	}
}

// ---- registry delegation ----

func (c *Core) CreateCollection(ctx context.Context, name, description, byID string) (*domain.Collection, error) {
	return c.reg.CreateCollection(ctx, name, description, byID)
}

func (c *Core) DeleteCollection(ctx context.Context, name, byID string) error {
	return c.reg.DeleteCollection(ctx, name, byID)
}

func (c *Core) RegisterFunction(ctx context.Context, collection string, decl registry.FunctionDecl, byID string) (*domain.Function, error) {
	return c.reg.Register(ctx, collection, decl, byID)
}

func (c *Core) UpdateFunction(ctx context.Context, collection, function string, decl registry.FunctionDecl, byID string) (*domain.Function, error) {
	return c.reg.Update(ctx, collection, function, decl, byID)
}

func (c *Core) DeleteFunction(ctx context.Context, collection, function, byID string) error {
	return c.reg.DeleteFunction(ctx, collection, function, byID)
}

func (c *Core) DeleteTable(ctx context.Context, collection, table, byID string) error {
	return c.reg.DeleteTable(ctx, collection, table, byID)
}

// ---- trigger ----

// Trigger plans an execution for a function and returns it. The planner
// persists the full shape before anything is dispatched.
func (c *Core) Trigger(ctx context.Context, collection, function string, executionName *string, byID string) (*domain.Execution, error) {
	dbc := dbctx.New(ctx)
	coll, err := c.cat.Collections.GetActiveByName(dbc, collection)
	if err != nil {
		return nil, err
	}
	if coll == nil {
		return nil, apierr.New(apierr.NotFound, "collection %q not found", collection)
	}
	fn, err := c.cat.Functions.GetByName(dbc, coll.ID, function)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, apierr.New(apierr.NotFound, "function %q not found in collection %q", function, collection)
	}
	return c.plan.Plan(ctx, planner.TriggerRequest{
		FunctionVersionID: fn.FunctionVersionID,
		Name:              executionName,
		TriggeredByID:     byID,
	})
}

// ---- callback ----

func (c *Core) WorkerCallback(ctx context.Context, functionRunID, token string, body []byte) error {
	return c.disp.ApplyCallback(ctx, functionRunID, token, body)
}

// ---- run/transaction/execution control ----

// CancelExecution marks every non-terminal run Canceled. Already
// dispatched runs get a best-effort cancel; their eventual callbacks are
// absorbed without rolling anything back.
func (c *Core) CancelExecution(ctx context.Context, executionID string) error {
	var canceled []*domain.FunctionRun
	err := c.cat.InTx(ctx, func(dbc dbctx.Context) error {
		runs, err := c.cat.Runs.ListByExecution(dbc, executionID)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return apierr.New(apierr.NotFound, "execution %s not found", executionID)
		}
		now := time.Now().UTC()
		for _, run := range runs {
			if !cancellable(run.Status) {
				continue
			}
			moved, err := c.cat.Runs.Transition(dbc, run.ID, cancellableSet(), domain.RunCanceled,
				map[string]interface{}{"ended_on": now})
			if err != nil {
				return err
			}
			if moved {
				run.Status = domain.RunCanceled
				canceled = append(canceled, run)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, run := range canceled {
		c.notifier.RunStatus(ctx, run)
		if !seen[run.TransactionID] {
			seen[run.TransactionID] = true
			if err := c.engine.Evaluate(ctx, run.TransactionID); err != nil {
				c.log.Warn("evaluate after cancel", "transaction_id", run.TransactionID, "error", err)
			}
		}
	}
	return nil
}

// CancelTransaction cancels every non-terminal run of one transaction.
func (c *Core) CancelTransaction(ctx context.Context, transactionID string) error {
	err := c.cat.InTx(ctx, func(dbc dbctx.Context) error {
		if _, err := c.cat.Executions.GetTransaction(dbc, transactionID); err != nil {
			return err
		}
		_, err := c.cat.Runs.TransitionAll(dbc, transactionID, cancellableSet(), domain.RunCanceled,
			map[string]interface{}{"ended_on": time.Now().UTC()})
		return err
	})
	if err != nil {
		return err
	}
	return c.engine.Evaluate(ctx, transactionID)
}

// RecoverTransaction reschedules the Failed and OnHold runs of a stalled
// transaction.
func (c *Core) RecoverTransaction(ctx context.Context, transactionID string) error {
	err := c.cat.InTx(ctx, func(dbc dbctx.Context) error {
		if _, err := c.cat.Executions.GetTransaction(dbc, transactionID); err != nil {
			return err
		}
		moved, err := c.cat.Runs.TransitionAll(dbc, transactionID,
			[]domain.FunctionRunStatus{domain.RunFailed, domain.RunOnHold},
			domain.RunReScheduled,
			map[string]interface{}{"error": "", "ended_on": nil})
		if err != nil {
			return err
		}
		if moved == 0 {
			return apierr.New(apierr.PreconditionFailed, "transaction %s has no failed or held runs", transactionID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.engine.Evaluate(ctx, transactionID)
}

// HoldRun parks a scheduled run until it is resumed.
func (c *Core) HoldRun(ctx context.Context, functionRunID string) error {
	return c.flipRun(ctx, functionRunID,
		[]domain.FunctionRunStatus{domain.RunScheduled, domain.RunReScheduled},
		domain.RunOnHold,
		"run %s is not scheduled")
}

// ResumeRun returns a held run to the scheduler.
func (c *Core) ResumeRun(ctx context.Context, functionRunID string) error {
	return c.flipRun(ctx, functionRunID,
		[]domain.FunctionRunStatus{domain.RunOnHold},
		domain.RunScheduled,
		"run %s is not on hold")
}

func (c *Core) flipRun(ctx context.Context, functionRunID string, from []domain.FunctionRunStatus, to domain.FunctionRunStatus, failFmt string) error {
	var run *domain.FunctionRun
	err := c.cat.InTx(ctx, func(dbc dbctx.Context) error {
		var err error
		run, err = c.cat.Runs.GetByID(dbc, functionRunID)
		if err != nil {
			return err
		}
		moved, err := c.cat.Runs.Transition(dbc, functionRunID, from, to, nil)
		if err != nil {
			return err
		}
		if !moved {
			return apierr.New(apierr.PreconditionFailed, failFmt, functionRunID)
		}
		run.Status = to
		return nil
	})
	if err != nil {
		return err
	}
	c.notifier.RunStatus(ctx, run)
	return c.engine.Evaluate(ctx, run.TransactionID)
}

// cancellableSet lists every status a cancel may move from; only runs past
// commit (Committed, Yanked) or already Canceled are out of reach.
func cancellableSet() []domain.FunctionRunStatus {
	return []domain.FunctionRunStatus{
		domain.RunScheduled, domain.RunRequested, domain.RunReScheduled,
		domain.RunRunning, domain.RunDone, domain.RunError, domain.RunFailed,
		domain.RunOnHold,
	}
}

func cancellable(s domain.FunctionRunStatus) bool {
	for _, c := range cancellableSet() {
		if s == c {
			return true
		}
	}
	return false
}
