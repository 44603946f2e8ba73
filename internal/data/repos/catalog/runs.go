package catalog

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type FunctionRunRepo interface {
	Create(dbc dbctx.Context, runs []*domain.FunctionRun) error
	GetByID(dbc dbctx.Context, id string) (*domain.FunctionRun, error)
	ListByExecution(dbc dbctx.Context, executionID string) ([]*domain.FunctionRun, error)
	ListByTransaction(dbc dbctx.Context, transactionID string) ([]*domain.FunctionRun, error)
	List(dbc dbctx.Context, q *listing.Query) ([]*domain.FunctionRun, error)

	// ListSchedulable returns Scheduled/ReScheduled runs, oldest first,
	// locked for the caller's transaction so concurrent schedulers skip
	// each other's claims.
	ListSchedulable(dbc dbctx.Context, limit int) ([]*domain.FunctionRun, error)
	// ListOverdue returns runs stuck in RunRequested/Running whose last
	// start is older than the cutoff.
	ListOverdue(dbc dbctx.Context, cutoff time.Time) ([]*domain.FunctionRun, error)

	// Transition flips status only when the run is currently in one of the
	// allowed source statuses; reports whether the row changed.
	Transition(dbc dbctx.Context, id string, from []domain.FunctionRunStatus, to domain.FunctionRunStatus, updates map[string]interface{}) (bool, error)
	// TransitionAll applies the same guarded flip to every run of a
	// transaction at once; the returned count is the number of rows moved.
	TransitionAll(dbc dbctx.Context, transactionID string, from []domain.FunctionRunStatus, to domain.FunctionRunStatus, updates map[string]interface{}) (int64, error)
	UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error
}

type functionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFunctionRunRepo(db *gorm.DB, baseLog *logger.Logger) FunctionRunRepo {
	return &functionRunRepo{db: db, log: baseLog.With("repo", "FunctionRunRepo")}
}

func (r *functionRunRepo) Create(dbc dbctx.Context, runs []*domain.FunctionRun) error {
	if len(runs) == 0 {
		return nil
	}
	return wrapDB(handle(dbc, r.db).Create(&runs).Error, "create function runs")
}

func (r *functionRunRepo) GetByID(dbc dbctx.Context, id string) (*domain.FunctionRun, error) {
	var run domain.FunctionRun
	if err := handle(dbc, r.db).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, wrapDB(err, "function run %s", id)
	}
	return &run, nil
}

func (r *functionRunRepo) ListByExecution(dbc dbctx.Context, executionID string) ([]*domain.FunctionRun, error) {
	var out []*domain.FunctionRun
	err := handle(dbc, r.db).
		Where("execution_id = ?", executionID).
		Order("id ASC").
		Find(&out).Error
	return out, wrapDB(err, "list runs of execution %s", executionID)
}

func (r *functionRunRepo) ListByTransaction(dbc dbctx.Context, transactionID string) ([]*domain.FunctionRun, error) {
	var out []*domain.FunctionRun
	err := handle(dbc, r.db).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&out).Error
	return out, wrapDB(err, "list runs of transaction %s", transactionID)
}

func (r *functionRunRepo) List(dbc dbctx.Context, q *listing.Query) ([]*domain.FunctionRun, error) {
	var out []*domain.FunctionRun
	err := q.Apply(handle(dbc, r.db).Table("function_runs__with_names")).Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list function runs")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *functionRunRepo) ListSchedulable(dbc dbctx.Context, limit int) ([]*domain.FunctionRun, error) {
	var out []*domain.FunctionRun
	q := handle(dbc, r.db).
		Where("status IN ?", []domain.FunctionRunStatus{domain.RunScheduled, domain.RunReScheduled}).
		Order("id ASC").
		Limit(limit)
	if dbc.Tx != nil {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	err := q.Find(&out).Error
	return out, wrapDB(err, "list schedulable runs")
}

func (r *functionRunRepo) ListOverdue(dbc dbctx.Context, cutoff time.Time) ([]*domain.FunctionRun, error) {
	var out []*domain.FunctionRun
	err := handle(dbc, r.db).
		Where("status IN ? AND started_on IS NOT NULL AND started_on < ?",
			[]domain.FunctionRunStatus{domain.RunRequested, domain.RunRunning}, cutoff).
		Find(&out).Error
	return out, wrapDB(err, "list overdue runs")
}

func (r *functionRunRepo) Transition(dbc dbctx.Context, id string, from []domain.FunctionRunStatus, to domain.FunctionRunStatus, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	q := handle(dbc, r.db).
		Model(&domain.FunctionRun{}).
		Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, wrapDB(res.Error, "transition run %s to %s", id, to)
	}
	return res.RowsAffected > 0, nil
}

func (r *functionRunRepo) TransitionAll(dbc dbctx.Context, transactionID string, from []domain.FunctionRunStatus, to domain.FunctionRunStatus, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	q := handle(dbc, r.db).
		Model(&domain.FunctionRun{}).
		Where("transaction_id = ?", transactionID)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return 0, wrapDB(res.Error, "transition transaction %s runs to %s", transactionID, to)
	}
	return res.RowsAffected, nil
}

func (r *functionRunRepo) UpdateFields(dbc dbctx.Context, id string, updates map[string]interface{}) error {
	err := handle(dbc, r.db).
		Model(&domain.FunctionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
	return wrapDB(err, "update run %s", id)
}
