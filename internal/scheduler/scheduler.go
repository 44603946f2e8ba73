// Package scheduler decides which scheduled runs are dispatchable, locks a
// worker message for each, assembles the request manifest and hands it to
// the dispatch sink.
package scheduler

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/auth"
	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/storage"
	"github.com/tabsdata/tabsdata-server/internal/worker"
)

// Sink receives a locked worker message and its manifest, inside the
// scheduling transaction. The in-tree implementation is the dispatcher;
// tests use fakes.
type Sink interface {
	Deliver(dbc dbctx.Context, msg *domain.WorkerMessage, req *worker.Request) error
}

type Scheduler struct {
	cat          *catalog.Catalog
	log          *logger.Logger
	layout       storage.Layout
	tokens       *auth.CallbackTokens
	engine       *commit.Engine
	sink         Sink
	callbackBase string

	batchSize int
}

func New(
	cat *catalog.Catalog,
	baseLog *logger.Logger,
	layout storage.Layout,
	tokens *auth.CallbackTokens,
	engine *commit.Engine,
	sink Sink,
	callbackBase string,
) *Scheduler {
	return &Scheduler{
		cat:          cat,
		log:          baseLog.With("component", "Scheduler"),
		layout:       layout,
		tokens:       tokens,
		engine:       engine,
		sink:         sink,
		callbackBase: callbackBase,
		batchSize:    32,
	}
}

// Start runs the scheduling sweep on a ticker until the context ends.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(ctx); err != nil {
					s.log.Warn("sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep examines every Scheduled/ReScheduled run once. A run is
// dispatchable when each of its requirements either is a legitimate null or
// references a data version whose producer is Done or Committed. A
// requirement resolved to a Failed or Canceled producer fails the run
// without dispatch.
func (s *Scheduler) Sweep(ctx context.Context) error {
	var failedTrx []string
	err := s.cat.InTx(ctx, func(dbc dbctx.Context) error {
		runs, err := s.cat.Runs.ListSchedulable(dbc, s.batchSize)
		if err != nil {
			return err
		}
		for _, run := range runs {
			disposition, err := s.classify(dbc, run)
			if err != nil {
				return err
			}
			switch disposition {
			case dispatchable:
				if err := s.dispatch(dbc, run); err != nil {
					return err
				}
			case doomed:
				moved, err := s.cat.Runs.Transition(dbc, run.ID,
					[]domain.FunctionRunStatus{domain.RunScheduled, domain.RunReScheduled},
					domain.RunFailed,
					map[string]interface{}{
						"error":    "requirement resolved to a failed or canceled data version",
						"ended_on": time.Now().UTC(),
					})
				if err != nil {
					return err
				}
				if moved {
					s.log.Info("run failed without dispatch", "function_run_id", run.ID)
					failedTrx = append(failedTrx, run.TransactionID)
				}
			case waiting:
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, trxID := range failedTrx {
		if err := s.engine.Evaluate(ctx, trxID); err != nil {
			s.log.Warn("evaluate after requirement failure", "transaction_id", trxID, "error", err)
		}
	}
	return nil
}

type disposition int

const (
	waiting disposition = iota
	dispatchable
	doomed
)

func (s *Scheduler) classify(dbc dbctx.Context, run *domain.FunctionRun) (disposition, error) {
	reqs, err := s.cat.Requirements.ListByRunWithStatus(dbc, run.ID)
	if err != nil {
		return waiting, err
	}
	for _, req := range reqs {
		if req.RequirementTableDataVersionID == nil {
			continue
		}
		if req.ProducerStatus == nil {
			return waiting, nil
		}
		switch domain.FunctionRunStatus(*req.ProducerStatus) {
		case domain.RunDone, domain.RunCommitted:
		case domain.RunFailed, domain.RunCanceled:
			return doomed, nil
		default:
			return waiting, nil
		}
	}
	return dispatchable, nil
}

// dispatch locks a fresh worker message, flips the run to RunRequested and
// delivers the manifest, all inside the sweep's catalog transaction.
func (s *Scheduler) dispatch(dbc dbctx.Context, run *domain.FunctionRun) error {
	now := time.Now().UTC()
	moved, err := s.cat.Runs.Transition(dbc, run.ID,
		[]domain.FunctionRunStatus{domain.RunScheduled, domain.RunReScheduled},
		domain.RunRequested,
		map[string]interface{}{"started_on": now})
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	req, err := s.buildRequest(dbc, run)
	if err != nil {
		return err
	}

	msg := &domain.WorkerMessage{
		ID:            ids.New(),
		CollectionID:  run.CollectionID,
		ExecutionID:   run.ExecutionID,
		TransactionID: run.TransactionID,
		FunctionRunID: run.ID,
		MessageStatus: domain.MessageLocked,
		CreatedOn:     now,
		LockedOn:      &now,
	}
	if err := s.cat.WorkerMessages.Create(dbc, msg); err != nil {
		return err
	}

	if err := s.sink.Deliver(dbc, msg, req); err != nil {
		return err
	}
	s.log.Info("dispatched run", "function_run_id", run.ID, "worker_message_id", msg.ID)
	return nil
}
