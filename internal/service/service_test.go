package service

import (
	"context"
	"testing"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/auth"
	"github.com/tabsdata/tabsdata-server/internal/commit"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/testutil"
	"github.com/tabsdata/tabsdata-server/internal/dispatcher"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/notify"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/planner"
	"github.com/tabsdata/tabsdata-server/internal/registry"
	"github.com/tabsdata/tabsdata-server/internal/scheduler"
	"github.com/tabsdata/tabsdata-server/internal/storage"
	"github.com/tabsdata/tabsdata-server/internal/worker"
)

// captureSink records what the scheduler hands to the dispatcher.
type captureSink struct {
	requests []*worker.Request
	messages []*domain.WorkerMessage
}

func (s *captureSink) Deliver(dbc dbctx.Context, msg *domain.WorkerMessage, req *worker.Request) error {
	s.messages = append(s.messages, msg)
	s.requests = append(s.requests, req)
	return nil
}

type harness struct {
	ctx   context.Context
	cat   *catalog.Catalog
	core  *Core
	sched *scheduler.Scheduler
	sink  *captureSink
	eng   *commit.Engine
	by    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)

	cat := catalog.New(tx, log)
	notifier := notify.Nop{}
	tokens := auth.NewCallbackTokens("test-secret", time.Hour)
	engine := commit.NewEngine(cat, log, notifier)
	disp := dispatcher.New(cat, log, tokens, engine, notifier, t.TempDir(), time.Minute)
	reg := registry.New(cat, log)
	plan := planner.New(cat, log)
	sink := &captureSink{}
	sched := scheduler.New(cat, log, storage.NewLayout("file:///tmp/td", ""), tokens, engine, sink, "http://localhost:2457")
	core := NewCore(cat, log, reg, plan, disp, engine, notifier)

	ctx := context.Background()
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")
	return &harness{ctx: ctx, cat: cat, core: core, sched: sched, sink: sink, eng: engine, by: ids.New()}
}

func (h *harness) register(t *testing.T, decl registry.FunctionDecl) {
	t.Helper()
	if _, err := h.core.RegisterFunction(h.ctx, "examples", decl, h.by); err != nil {
		t.Fatalf("register %s: %v", decl.Name, err)
	}
}

// respond posts a callback with the given status for a captured request,
// reporting every output as written.
func (h *harness) respond(t *testing.T, req *worker.Request, status worker.CallbackStatus) {
	t.Helper()
	var outputs []worker.WrittenTable
	for _, out := range req.Context.Output {
		outputs = append(outputs, worker.WrittenTable{Kind: worker.WrittenData, Table: out.Name})
	}
	for _, out := range req.Context.SystemOutput {
		outputs = append(outputs, worker.WrittenTable{Kind: worker.WrittenData, Table: out.Name})
	}
	resp := &worker.Response{
		Version: worker.V2,
		ID:      ids.New(),
		Class:   worker.ClassEphemeral,
		Worker:  worker.WorkerFunction,
		Action:  worker.ActionNotify,
		Start:   time.Now().Add(-time.Second).UnixMilli(),
		End:     time.Now().UnixMilli(),
		Status:  status,
		Context: worker.ResponseContext{Output: outputs},
	}
	body, err := worker.EncodeResponse(resp)
	if err != nil {
		t.Fatalf("encode response: %v", err)
	}
	token := req.Callback.Headers["Authorization"][len("Bearer "):]
	runID := req.Context.Info.FunctionRunID
	if err := h.core.WorkerCallback(h.ctx, runID, token, body); err != nil {
		t.Fatalf("callback for %s: %v", runID, err)
	}
}

func registerLinearPipeline(t *testing.T, h *harness) {
	h.register(t, registry.FunctionDecl{
		Name: "pub", BundleHash: "b1", Decorator: domain.DecoratorPublisher,
		Tables: []string{"persons"},
	})
	h.register(t, registry.FunctionDecl{
		Name: "tfr", BundleHash: "b2", Decorator: domain.DecoratorTransformer,
		Tables:       []string{"spanish"},
		Dependencies: []string{"persons"},
		Triggers:     []string{"persons"},
	})
	h.register(t, registry.FunctionDecl{
		Name: "sub", BundleHash: "b3", Decorator: domain.DecoratorSubscriber,
		Dependencies: []string{"spanish"},
		Triggers:     []string{"spanish"},
	})
}

func TestLinearPipelineCommit(t *testing.T) {
	h := newHarness(t)
	registerLinearPipeline(t, h)

	execution, err := h.core.Trigger(h.ctx, "examples", "pub", nil, h.by)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	dbc := dbctx.New(h.ctx)
	runs, err := h.cat.Runs.ListByExecution(dbc, execution.ID)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	trxs, err := h.cat.Executions.ListTransactionsByExecution(dbc, execution.ID)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(trxs) != 1 {
		t.Fatalf("expected 1 transaction (same grouping key), got %d", len(trxs))
	}
	for _, run := range runs {
		if run.Status != domain.RunScheduled {
			t.Fatalf("run %s status = %s, want S", run.ID, run.Status)
		}
	}

	// Drive the pipeline: each sweep dispatches exactly the runs whose
	// requirements are satisfied, in dependency order.
	for round := 0; round < 3; round++ {
		if err := h.sched.Sweep(h.ctx); err != nil {
			t.Fatalf("sweep %d: %v", round, err)
		}
		if len(h.sink.requests) != round+1 {
			t.Fatalf("sweep %d dispatched %d runs, want %d", round, len(h.sink.requests), round+1)
		}
		h.respond(t, h.sink.requests[round], worker.CallbackDone)
	}

	order := []string{"pub", "tfr", "sub"}
	for i, req := range h.sink.requests {
		if req.Context.Info.Function != order[i] {
			t.Fatalf("dispatch order[%d] = %s, want %s", i, req.Context.Info.Function, order[i])
		}
	}

	// tfr's input must point at pub's freshly produced persons version.
	tfrReq := h.sink.requests[1]
	if len(tfrReq.Context.Input) != 1 {
		t.Fatalf("tfr inputs = %d, want 1", len(tfrReq.Context.Input))
	}
	if tfrReq.Context.Input[0].TableDataVersionID == nil {
		t.Fatal("tfr input should resolve to the planned persons version")
	}

	runs, _ = h.cat.Runs.ListByExecution(dbc, execution.ID)
	for _, run := range runs {
		if run.Status != domain.RunCommitted {
			t.Fatalf("run %s status = %s, want C", run.ID, run.Status)
		}
	}

	trxView, err := h.core.GetTransaction(h.ctx, trxs[0].ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if trxView.Status != domain.TrxCommitted {
		t.Fatalf("transaction status = %s, want C", trxView.Status)
	}
	if trxView.CommittedOn == nil {
		t.Fatal("commited_on must be stamped")
	}

	execView, err := h.core.GetExecution(h.ctx, execution.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if execView.Status != domain.ExecFinished {
		t.Fatalf("execution status = %s, want F", execView.Status)
	}
}

func TestCallbackIdempotent(t *testing.T) {
	h := newHarness(t)
	h.register(t, registry.FunctionDecl{Name: "pub", BundleHash: "b1", Tables: []string{"persons"}})

	execution, err := h.core.Trigger(h.ctx, "examples", "pub", nil, h.by)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := h.sched.Sweep(h.ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(h.sink.requests) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(h.sink.requests))
	}
	req := h.sink.requests[0]

	var outputs []worker.WrittenTable
	for _, out := range req.Context.Output {
		outputs = append(outputs, worker.WrittenTable{Kind: worker.WrittenData, Table: out.Name})
	}
	resp := &worker.Response{
		Version: worker.V2, ID: ids.New(),
		Class: worker.ClassEphemeral, Worker: worker.WorkerFunction, Action: worker.ActionNotify,
		Start: 1000, End: 2000, Status: worker.CallbackDone,
		Context: worker.ResponseContext{Output: outputs},
	}
	body, _ := worker.EncodeResponse(resp)
	token := req.Callback.Headers["Authorization"][len("Bearer "):]
	runID := req.Context.Info.FunctionRunID

	if err := h.core.WorkerCallback(h.ctx, runID, token, body); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	// An identical body is absorbed silently.
	if err := h.core.WorkerCallback(h.ctx, runID, token, body); err != nil {
		t.Fatalf("repeated identical callback: %v", err)
	}
	// A conflicting body is rejected.
	resp.Status = worker.CallbackFailed
	conflicting, _ := worker.EncodeResponse(resp)
	err = h.core.WorkerCallback(h.ctx, runID, token, conflicting)
	if !apierr.IsKind(err, apierr.Conflict) {
		t.Fatalf("conflicting callback: got %v, want Conflict", err)
	}

	dbc := dbctx.New(h.ctx)
	runs, _ := h.cat.Runs.ListByExecution(dbc, execution.ID)
	if runs[0].Status != domain.RunCommitted {
		t.Fatalf("run status = %s, want C after commit", runs[0].Status)
	}
}

func TestCancelThenCommitIsNoOp(t *testing.T) {
	h := newHarness(t)
	registerLinearPipeline(t, h)

	execution, err := h.core.Trigger(h.ctx, "examples", "pub", nil, h.by)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if err := h.core.CancelExecution(h.ctx, execution.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	dbc := dbctx.New(h.ctx)
	runs, _ := h.cat.Runs.ListByExecution(dbc, execution.ID)
	for _, run := range runs {
		if run.Status != domain.RunCanceled {
			t.Fatalf("run %s status = %s, want X", run.ID, run.Status)
		}
	}

	// Nothing dispatches and nothing commits on already-canceled runs.
	if err := h.sched.Sweep(h.ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(h.sink.requests) != 0 {
		t.Fatalf("canceled execution dispatched %d runs", len(h.sink.requests))
	}
	committed, err := h.eng.TryCommit(h.ctx, runs[0].TransactionID)
	if err != nil {
		t.Fatalf("try commit: %v", err)
	}
	if committed {
		t.Fatal("commit after cancel must be a no-op")
	}
	runs, _ = h.cat.Runs.ListByExecution(dbc, execution.ID)
	for _, run := range runs {
		if run.Status != domain.RunCanceled {
			t.Fatalf("run %s rolled back from X to %s", run.ID, run.Status)
		}
	}
}

func TestFailurePropagation(t *testing.T) {
	h := newHarness(t)
	registerLinearPipeline(t, h)

	execution, err := h.core.Trigger(h.ctx, "examples", "pub", nil, h.by)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	if err := h.sched.Sweep(h.ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// pub fails; tfr and sub must fail without dispatch.
	h.respond(t, h.sink.requests[0], worker.CallbackFailed)
	if err := h.sched.Sweep(h.ctx); err != nil {
		t.Fatalf("sweep after failure: %v", err)
	}
	if len(h.sink.requests) != 1 {
		t.Fatalf("downstream runs must not dispatch, got %d dispatches", len(h.sink.requests))
	}

	dbc := dbctx.New(h.ctx)
	runs, _ := h.cat.Runs.ListByExecution(dbc, execution.ID)
	for _, run := range runs {
		if run.Status != domain.RunFailed {
			t.Fatalf("run %s status = %s, want F", run.ID, run.Status)
		}
	}

	trxs, _ := h.cat.Executions.ListTransactionsByExecution(dbc, execution.ID)
	trxView, err := h.core.GetTransaction(h.ctx, trxs[0].ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if trxView.Status != domain.TrxStalled {
		t.Fatalf("transaction status = %s, want L", trxView.Status)
	}
}
