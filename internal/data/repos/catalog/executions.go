package catalog

import (
	"time"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type ExecutionRepo interface {
	Create(dbc dbctx.Context, e *domain.Execution) error
	GetByID(dbc dbctx.Context, id string) (*domain.Execution, error)
	List(dbc dbctx.Context, q *listing.Query) ([]*domain.Execution, error)

	CreateTransactions(dbc dbctx.Context, trxs []*domain.Transaction) error
	GetTransaction(dbc dbctx.Context, id string) (*domain.Transaction, error)
	ListTransactionsByExecution(dbc dbctx.Context, executionID string) ([]*domain.Transaction, error)
	ListTransactions(dbc dbctx.Context, q *listing.Query) ([]*domain.Transaction, error)
	// StampCommitted records the commit instant on a transaction.
	StampCommitted(dbc dbctx.Context, transactionID string, on time.Time) error
	StampEnded(dbc dbctx.Context, transactionID string, on time.Time) error
}

type executionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionRepo {
	return &executionRepo{db: db, log: baseLog.With("repo", "ExecutionRepo")}
}

func (r *executionRepo) Create(dbc dbctx.Context, e *domain.Execution) error {
	return wrapDB(handle(dbc, r.db).Create(e).Error, "create execution")
}

func (r *executionRepo) GetByID(dbc dbctx.Context, id string) (*domain.Execution, error) {
	var e domain.Execution
	if err := handle(dbc, r.db).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, wrapDB(err, "execution %s", id)
	}
	return &e, nil
}

func (r *executionRepo) List(dbc dbctx.Context, q *listing.Query) ([]*domain.Execution, error) {
	var out []*domain.Execution
	err := q.Apply(handle(dbc, r.db).Table("executions__with_names")).Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list executions")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *executionRepo) CreateTransactions(dbc dbctx.Context, trxs []*domain.Transaction) error {
	if len(trxs) == 0 {
		return nil
	}
	return wrapDB(handle(dbc, r.db).Create(&trxs).Error, "create transactions")
}

func (r *executionRepo) GetTransaction(dbc dbctx.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := handle(dbc, r.db).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, wrapDB(err, "transaction %s", id)
	}
	return &t, nil
}

func (r *executionRepo) ListTransactionsByExecution(dbc dbctx.Context, executionID string) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := handle(dbc, r.db).
		Where("execution_id = ?", executionID).
		Order("id ASC").
		Find(&out).Error
	return out, wrapDB(err, "list transactions of %s", executionID)
}

func (r *executionRepo) ListTransactions(dbc dbctx.Context, q *listing.Query) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := q.Apply(handle(dbc, r.db).Table("transactions__with_names")).Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list transactions")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *executionRepo) StampCommitted(dbc dbctx.Context, transactionID string, on time.Time) error {
	err := handle(dbc, r.db).
		Model(&domain.Transaction{}).
		Where("id = ? AND commited_on IS NULL", transactionID).
		Update("commited_on", on).Error
	return wrapDB(err, "stamp transaction %s committed", transactionID)
}

func (r *executionRepo) StampEnded(dbc dbctx.Context, transactionID string, on time.Time) error {
	err := handle(dbc, r.db).
		Model(&domain.Transaction{}).
		Where("id = ? AND ended_on IS NULL", transactionID).
		Update("ended_on", on).Error
	return wrapDB(err, "stamp transaction %s ended", transactionID)
}
