package scheduler

import (
	"fmt"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/worker"
)

// buildRequest assembles the V2 request envelope for a dispatchable run:
// identity, ordered resolved inputs, pre-allocated output slots and the
// callback binding.
func (s *Scheduler) buildRequest(dbc dbctx.Context, run *domain.FunctionRun) (*worker.Request, error) {
	fv, err := s.cat.Functions.GetVersion(dbc, run.FunctionVersionID)
	if err != nil {
		return nil, err
	}
	collection, err := s.cat.Collections.GetByID(dbc, run.CollectionID)
	if err != nil {
		return nil, err
	}
	execution, err := s.cat.Executions.GetByID(dbc, run.ExecutionID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Mint(run.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	req := &worker.Request{
		Version: worker.V2,
		Class:   worker.ClassEphemeral,
		Worker:  worker.WorkerFunction,
		Action:  worker.ActionStart,
		Callback: worker.Callback{
			URL:    fmt.Sprintf("%s/callback/%s", s.callbackBase, run.ID),
			Method: "POST",
			Headers: map[string]string{
				"Authorization": "Bearer " + token,
			},
		},
		Context: worker.RequestContext{
			Info: worker.FunctionInfo{
				CollectionID:      collection.ID,
				Collection:        collection.Name,
				FunctionID:        run.FunctionID,
				FunctionVersionID: fv.ID,
				Function:          fv.Name,
				FunctionRunID:     run.ID,
				FunctionBundle:    s.layout.Bundle(collection.ID, fv.BundleID),
				FunctionData:      s.layout.FunctionData(collection.ID, fv.ID),
				TransactionID:     run.TransactionID,
				ExecutionID:       run.ExecutionID,
				ExecutionName:     execution.Name,
				TriggeredOn:       execution.TriggeredOn.UnixMilli(),
				ScheduledOn:       time.Now().UTC().UnixMilli(),
			},
			SystemInput:  []worker.InputTable{},
			Input:        []worker.InputTable{},
			SystemOutput: []worker.OutputTable{},
			Output:       []worker.OutputTable{},
		},
	}

	if err := s.attachInputs(dbc, run, req); err != nil {
		return nil, err
	}
	if err := s.attachOutputs(dbc, run, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Scheduler) attachInputs(dbc dbctx.Context, run *domain.FunctionRun, req *worker.Request) error {
	reqs, err := s.cat.Requirements.ListByRun(dbc, run.ID)
	if err != nil {
		return err
	}
	inputIdx := 0
	for _, r := range reqs {
		table, err := s.cat.Tables.GetByID(dbc, r.RequirementTableID)
		if err != nil {
			return err
		}
		tv, err := s.cat.Tables.GetVersion(dbc, r.RequirementTableVersionID)
		if err != nil {
			return err
		}
		tableCollection, err := s.cat.Collections.GetByID(dbc, table.CollectionID)
		if err != nil {
			return err
		}
		in := worker.InputTable{
			Name:           table.Name,
			CollectionID:   table.CollectionID,
			Collection:     tableCollection.Name,
			TableID:        table.ID,
			TableVersionID: tv.ID,
			TablePos:       r.DepPos,
			VersionPos:     r.VersionPos,
			InputIdx:       inputIdx,
		}
		if r.RequirementTableDataVersionID != nil {
			tdv, err := s.cat.DataVersions.GetByID(dbc, *r.RequirementTableDataVersionID)
			if err != nil {
				return err
			}
			loc := s.layout.TableData(table.CollectionID, table.ID, tdv.ID)
			in.TableDataVersionID = &tdv.ID
			in.FunctionRunID = &tdv.FunctionRunID
			in.Location = &loc
		}
		inputIdx++
		if r.DepPos < 0 {
			req.Context.SystemInput = append(req.Context.SystemInput, in)
		} else {
			req.Context.Input = append(req.Context.Input, in)
		}
	}
	return nil
}

func (s *Scheduler) attachOutputs(dbc dbctx.Context, run *domain.FunctionRun, req *worker.Request) error {
	versions, err := s.cat.DataVersions.ListByRun(dbc, run.ID)
	if err != nil {
		return err
	}
	for _, tdv := range versions {
		table, err := s.cat.Tables.GetByID(dbc, tdv.TableID)
		if err != nil {
			return err
		}
		tableCollection, err := s.cat.Collections.GetByID(dbc, table.CollectionID)
		if err != nil {
			return err
		}
		out := worker.OutputTable{
			Name:               table.Name,
			CollectionID:       table.CollectionID,
			Collection:         tableCollection.Name,
			TableID:            table.ID,
			TableVersionID:     tdv.TableVersionID,
			TableDataVersionID: tdv.ID,
			Location:           s.layout.TableData(table.CollectionID, table.ID, tdv.ID),
			TablePos:           tdv.FunctionParamPos,
			Partitioned:        tdv.Partitioned,
		}
		if tdv.FunctionParamPos < 0 {
			req.Context.SystemOutput = append(req.Context.SystemOutput, out)
		} else {
			req.Context.Output = append(req.Context.Output, out)
		}
	}
	return nil
}
