package dispatcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/worker"
)

// ApplyCallback verifies and applies a worker response for a run. Repeated
// callbacks with an identical body are accepted silently; a conflicting
// body against a terminal run is a Conflict. Callbacks for canceled runs
// are accepted without rolling anything back.
func (d *Dispatcher) ApplyCallback(ctx context.Context, functionRunID, token string, body []byte) error {
	if err := d.tokens.Verify(token, functionRunID); err != nil {
		return err
	}
	resp, err := worker.DecodeResponse(body)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(body)
	bodyHash := hex.EncodeToString(sum[:])

	var evaluate string
	var notified *domain.FunctionRun
	err = d.cat.InTx(ctx, func(dbc dbctx.Context) error {
		run, err := d.cat.Runs.GetByID(dbc, functionRunID)
		if err != nil {
			return err
		}
		msg, err := d.cat.WorkerMessages.GetByRun(dbc, functionRunID)
		if err != nil {
			return err
		}

		if run.Status == domain.RunCanceled {
			// Cancellation wins; the late callback is absorbed.
			return nil
		}
		if run.Status.Terminal() || (msg != nil && msg.ResponseHash != "") {
			if msg != nil && msg.ResponseHash == bodyHash {
				return nil
			}
			return apierr.New(apierr.Conflict, "conflicting callback body for run %s", functionRunID)
		}

		switch resp.Status {
		case worker.CallbackRunning:
			_, err = d.cat.Runs.Transition(dbc, run.ID,
				[]domain.FunctionRunStatus{domain.RunRequested},
				domain.RunRunning,
				map[string]interface{}{"started_on": time.UnixMilli(resp.Start).UTC()})
			return err
		case worker.CallbackDone:
			if err := d.applyTerminal(dbc, run, resp, domain.RunDone); err != nil {
				return err
			}
			evaluate = run.TransactionID
		case worker.CallbackFailed:
			if err := d.applyTerminal(dbc, run, resp, domain.RunFailed); err != nil {
				return err
			}
			evaluate = run.TransactionID
		case worker.CallbackCanceled:
			if err := d.applyTerminal(dbc, run, resp, domain.RunCanceled); err != nil {
				return err
			}
			evaluate = run.TransactionID
		case worker.CallbackError:
			msgText := "worker reported an error"
			if resp.Error != nil {
				msgText = *resp.Error
			}
			_, err = d.cat.Runs.Transition(dbc, run.ID,
				[]domain.FunctionRunStatus{domain.RunRequested, domain.RunRunning},
				domain.RunError,
				map[string]interface{}{"error": msgText})
			if err != nil {
				return err
			}
		default:
			return apierr.New(apierr.Invalid, "unknown callback status %q", resp.Status)
		}

		if msg != nil {
			if err := d.markApplied(dbc, msg, bodyHash); err != nil {
				return err
			}
		}
		run.Status = callbackRunStatus(resp.Status)
		notified = run
		return nil
	})
	if err != nil {
		return err
	}

	if notified != nil {
		d.notifier.RunStatus(ctx, notified)
	}
	if evaluate != "" {
		return d.engine.Evaluate(ctx, evaluate)
	}
	return nil
}

func callbackRunStatus(s worker.CallbackStatus) domain.FunctionRunStatus {
	switch s {
	case worker.CallbackRunning:
		return domain.RunRunning
	case worker.CallbackDone:
		return domain.RunDone
	case worker.CallbackError:
		return domain.RunError
	case worker.CallbackFailed:
		return domain.RunFailed
	case worker.CallbackCanceled:
		return domain.RunCanceled
	}
	return domain.FunctionRunStatus("")
}

// applyTerminal records timestamps and the per-table outcome, then flips
// the run. Every produced slot gets has_data resolved: true for !Data and
// !Partitions entries, false for !NoData and for slots the response never
// mentioned.
func (d *Dispatcher) applyTerminal(dbc dbctx.Context, run *domain.FunctionRun, resp *worker.Response, to domain.FunctionRunStatus) error {
	updates := map[string]interface{}{
		"started_on": time.UnixMilli(resp.Start).UTC(),
		"ended_on":   time.UnixMilli(resp.End).UTC(),
	}
	if resp.Error != nil {
		updates["error"] = *resp.Error
	}
	moved, err := d.cat.Runs.Transition(dbc, run.ID,
		[]domain.FunctionRunStatus{domain.RunRequested, domain.RunRunning},
		to, updates)
	if err != nil {
		return err
	}
	if !moved {
		return apierr.New(apierr.Conflict, "run %s no longer accepts callbacks", run.ID)
	}

	versions, err := d.cat.DataVersions.ListByRun(dbc, run.ID)
	if err != nil {
		return err
	}
	byName := map[string]*worker.WrittenTable{}
	for i := range resp.Context.Output {
		out := &resp.Context.Output[i]
		byName[out.Table] = out
	}
	for _, tdv := range versions {
		table, err := d.cat.Tables.GetByID(dbc, tdv.TableID)
		if err != nil {
			return err
		}
		written := byName[table.Name]
		hasData := written != nil && written.Kind != worker.WrittenNoData
		if err := d.cat.DataVersions.SetHasData(dbc, tdv.ID, hasData); err != nil {
			return err
		}
		if written != nil && written.Kind == worker.WrittenPartitions {
			parts := make([]*domain.TablePartition, 0, len(written.Partitions))
			for key, file := range written.Partitions {
				parts = append(parts, &domain.TablePartition{
					ID:                 ids.New(),
					TableDataVersionID: tdv.ID,
					PartitionKey:       key,
					FileName:           file,
				})
			}
			if err := d.cat.DataVersions.CreatePartitions(dbc, parts); err != nil {
				return err
			}
		}
	}
	return nil
}

// markApplied unlocks the message and fingerprints the applied body.
func (d *Dispatcher) markApplied(dbc dbctx.Context, msg *domain.WorkerMessage, bodyHash string) error {
	if err := d.cat.WorkerMessages.Unlock(dbc, msg.ID, time.Now().UTC()); err != nil {
		return err
	}
	return d.cat.WorkerMessages.SetResponseHash(dbc, msg.ID, bodyHash)
}
