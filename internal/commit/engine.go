package commit

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/notify"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

// Engine applies the commit decision: when every run of a transaction is
// Done and every requirement of the transaction resolves to a Done or
// Committed data version, all runs flip to Committed in one catalog
// transaction. Partial commits are impossible.
type Engine struct {
	cat      *catalog.Catalog
	log      *logger.Logger
	notifier notify.Notifier
}

func NewEngine(cat *catalog.Catalog, baseLog *logger.Logger, notifier notify.Notifier) *Engine {
	return &Engine{
		cat:      cat,
		log:      baseLog.With("component", "CommitEngine"),
		notifier: notifier,
	}
}

func runStatuses(runs []*domain.FunctionRun) []domain.FunctionRunStatus {
	statuses := make([]domain.FunctionRunStatus, len(runs))
	for i, r := range runs {
		statuses[i] = r.Status
	}
	return statuses
}

// Evaluate recomputes the transaction after a run changed status, commits
// when the decision holds, and publishes the resulting rollups.
func (e *Engine) Evaluate(ctx context.Context, transactionID string) error {
	committed, err := e.TryCommit(ctx, transactionID)
	if err != nil {
		return err
	}
	if committed {
		e.log.Info("transaction committed", "transaction_id", transactionID)
	}
	return e.publish(ctx, transactionID)
}

// TryCommit checks the commit decision and applies it atomically. It is a
// no-op (false, nil) when the transaction is not yet committable, which
// makes repeated evaluation idempotent.
func (e *Engine) TryCommit(ctx context.Context, transactionID string) (bool, error) {
	committed := false
	err := e.cat.InTx(ctx, func(dbc dbctx.Context) error {
		runs, err := e.cat.Runs.ListByTransaction(dbc, transactionID)
		if err != nil {
			return err
		}
		if len(runs) == 0 || !all(runStatuses(runs), domain.RunDone) {
			return nil
		}

		reqs, err := e.cat.Requirements.ListByTransactionWithStatus(dbc, transactionID)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			if req.RequirementTableDataVersionID == nil {
				continue
			}
			if req.ProducerStatus == nil {
				return nil
			}
			switch domain.FunctionRunStatus(*req.ProducerStatus) {
			case domain.RunDone, domain.RunCommitted:
			default:
				return nil
			}
		}

		now := time.Now().UTC()
		moved, err := e.cat.Runs.TransitionAll(dbc, transactionID,
			[]domain.FunctionRunStatus{domain.RunDone}, domain.RunCommitted,
			map[string]interface{}{"ended_on": now})
		if err != nil {
			return err
		}
		if moved != int64(len(runs)) {
			// A run moved under us; leave the decision to the next pass.
			return errConcurrentTransition
		}
		if err := e.cat.Executions.StampCommitted(dbc, transactionID, now); err != nil {
			return err
		}
		if err := e.cat.DataVersions.StampCommittedByTransaction(dbc, transactionID); err != nil {
			return err
		}
		committed = true
		return nil
	})
	if err == errConcurrentTransition {
		return false, nil
	}
	return committed, err
}

// publish recomputes and emits the transaction and execution rollups.
func (e *Engine) publish(ctx context.Context, transactionID string) error {
	dbc := dbctx.New(ctx)
	trx, err := e.cat.Executions.GetTransaction(dbc, transactionID)
	if err != nil {
		return err
	}
	trxRuns, err := e.cat.Runs.ListByTransaction(dbc, transactionID)
	if err != nil {
		return err
	}
	e.notifier.TransactionStatus(ctx, trx.ExecutionID, transactionID, TransactionStatus(runStatuses(trxRuns)))

	execRuns, err := e.cat.Runs.ListByExecution(dbc, trx.ExecutionID)
	if err != nil {
		return err
	}
	e.notifier.ExecutionStatus(ctx, trx.ExecutionID, ExecutionStatus(runStatuses(execRuns)))
	return nil
}

type sentinelError string

func (s sentinelError) Error() string { return string(s) }

const errConcurrentTransition = sentinelError("concurrent run transition")
