// Package notify publishes execution status transitions so external
// listeners can follow progress without polling the catalog. Publishing is
// best effort and never blocks or fails a core operation.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

const channel = "td:executions"

type Event struct {
	Kind          string    `json:"kind"`
	ExecutionID   string    `json:"execution_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	FunctionRunID string    `json:"function_run_id,omitempty"`
	Status        string    `json:"status"`
	At            time.Time `json:"at"`
}

type Notifier interface {
	RunStatus(ctx context.Context, run *domain.FunctionRun)
	TransactionStatus(ctx context.Context, executionID, transactionID string, status domain.TransactionStatus)
	ExecutionStatus(ctx context.Context, executionID string, status domain.ExecutionStatus)
}

type redisNotifier struct {
	rdb *redis.Client
	log *logger.Logger
}

func NewRedisNotifier(rdb *redis.Client, baseLog *logger.Logger) Notifier {
	return &redisNotifier{rdb: rdb, log: baseLog.With("component", "Notifier")}
}

func (n *redisNotifier) publish(ctx context.Context, ev Event) {
	if n.rdb == nil {
		return
	}
	ev.At = time.Now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := n.rdb.Publish(ctx, channel, b).Err(); err != nil {
		n.log.Debug("publish failed", "kind", ev.Kind, "error", err)
	}
}

func (n *redisNotifier) RunStatus(ctx context.Context, run *domain.FunctionRun) {
	n.publish(ctx, Event{
		Kind:          "function_run",
		ExecutionID:   run.ExecutionID,
		TransactionID: run.TransactionID,
		FunctionRunID: run.ID,
		Status:        string(run.Status),
	})
}

func (n *redisNotifier) TransactionStatus(ctx context.Context, executionID, transactionID string, status domain.TransactionStatus) {
	n.publish(ctx, Event{
		Kind:          "transaction",
		ExecutionID:   executionID,
		TransactionID: transactionID,
		Status:        string(status),
	})
}

func (n *redisNotifier) ExecutionStatus(ctx context.Context, executionID string, status domain.ExecutionStatus) {
	n.publish(ctx, Event{
		Kind:        "execution",
		ExecutionID: executionID,
		Status:      string(status),
	})
}

// Nop is used where no broker is configured (tests, CLI-local runs).
type Nop struct{}

func (Nop) RunStatus(context.Context, *domain.FunctionRun) {}
func (Nop) TransactionStatus(context.Context, string, string, domain.TransactionStatus) {
}
func (Nop) ExecutionStatus(context.Context, string, domain.ExecutionStatus) {}
