// Package dispatcher pairs worker messages with workers and applies their
// callbacks. It owns the retry budget and the watchdog that turns overdue
// dispatches into retryable errors.
package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/auth"
	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/notify"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/worker"
)

type Dispatcher struct {
	cat      *catalog.Catalog
	log      *logger.Logger
	tokens   *auth.CallbackTokens
	engine   *commit.Engine
	notifier notify.Notifier

	// spoolDir is where request manifests are presented to the worker
	// pool; the pool itself is an external collaborator.
	spoolDir string

	// dispatchTimeout bounds how long a run may sit in RunRequested or
	// Running before the watchdog turns it into an Error.
	dispatchTimeout time.Duration
}

func New(
	cat *catalog.Catalog,
	baseLog *logger.Logger,
	tokens *auth.CallbackTokens,
	engine *commit.Engine,
	notifier notify.Notifier,
	spoolDir string,
	dispatchTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		cat:             cat,
		log:             baseLog.With("component", "Dispatcher"),
		tokens:          tokens,
		engine:          engine,
		notifier:        notifier,
		spoolDir:        spoolDir,
		dispatchTimeout: dispatchTimeout,
	}
}

// Deliver presents the manifest file to the worker pool. The message is
// already Locked, so no other dispatcher can hand out the same run.
func (d *Dispatcher) Deliver(dbc dbctx.Context, msg *domain.WorkerMessage, req *worker.Request) error {
	b, err := worker.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.spoolDir, 0o755); err != nil {
		return apierr.Wrap(apierr.Transient, err, "create spool dir")
	}
	path := filepath.Join(d.spoolDir, msg.ID+".yaml")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return apierr.Wrap(apierr.Transient, err, "write request manifest")
	}
	return d.cat.WorkerMessages.SetRequestPath(dbc, msg.ID, path)
}

// Start runs the retry/watchdog loop.
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.watchdog(ctx); err != nil {
					d.log.Warn("watchdog failed", "error", err)
				}
				if err := d.retrySweep(ctx); err != nil {
					d.log.Warn("retry sweep failed", "error", err)
				}
			}
		}
	}()
}

// watchdog turns overdue dispatches into Error so the retry budget applies.
func (d *Dispatcher) watchdog(ctx context.Context) error {
	dbc := dbctx.New(ctx)
	cutoff := time.Now().UTC().Add(-d.dispatchTimeout)
	overdue, err := d.cat.Runs.ListOverdue(dbc, cutoff)
	if err != nil {
		return err
	}
	for _, run := range overdue {
		moved, err := d.cat.Runs.Transition(dbc, run.ID,
			[]domain.FunctionRunStatus{domain.RunRequested, domain.RunRunning},
			domain.RunError,
			map[string]interface{}{"error": "worker invocation timed out"})
		if err != nil {
			return err
		}
		if moved {
			d.log.Warn("run timed out", "function_run_id", run.ID)
		}
	}
	return nil
}

// retrySweep applies the retry policy: Error becomes ReScheduled while the
// per-function budget lasts, then Failed.
func (d *Dispatcher) retrySweep(ctx context.Context) error {
	dbc := dbctx.New(ctx)
	var runs []*domain.FunctionRun
	err := d.cat.DB().WithContext(ctx).
		Where("status = ?", domain.RunError).
		Find(&runs).Error
	if err != nil {
		return err
	}
	for _, run := range runs {
		fv, err := d.cat.Functions.GetVersion(dbc, run.FunctionVersionID)
		if err != nil {
			return err
		}
		if run.Attempts < fv.MaxRetries {
			moved, err := d.cat.Runs.Transition(dbc, run.ID,
				[]domain.FunctionRunStatus{domain.RunError},
				domain.RunReScheduled,
				map[string]interface{}{"attempts": run.Attempts + 1})
			if err != nil {
				return err
			}
			if moved {
				d.log.Info("run rescheduled", "function_run_id", run.ID, "attempt", run.Attempts+1)
			}
			continue
		}
		moved, err := d.cat.Runs.Transition(dbc, run.ID,
			[]domain.FunctionRunStatus{domain.RunError},
			domain.RunFailed,
			map[string]interface{}{"ended_on": time.Now().UTC()})
		if err != nil {
			return err
		}
		if moved {
			d.log.Warn("run failed after retry budget", "function_run_id", run.ID, "attempts", run.Attempts)
			if err := d.engine.Evaluate(ctx, run.TransactionID); err != nil {
				d.log.Warn("evaluate after retry exhaustion", "transaction_id", run.TransactionID, "error", err)
			}
		}
	}
	return nil
}
