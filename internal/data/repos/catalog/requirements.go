package catalog

import (
	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

// RequirementStatusRow pairs a requirement with the current status of the
// run producing its referenced data version. Null requirements carry an
// empty status.
type RequirementStatusRow struct {
	domain.FunctionRequirement
	ProducerStatus *string `gorm:"column:producer_status"`
}

type RequirementRepo interface {
	Create(dbc dbctx.Context, reqs []*domain.FunctionRequirement) error
	ListByRun(dbc dbctx.Context, functionRunID string) ([]*domain.FunctionRequirement, error)
	// ListByRunWithStatus decorates each requirement with the status of the
	// producing run, ordered as the worker manifest expects: positive
	// dep_pos ascending, then negatives by absolute value, then version
	// position.
	ListByRunWithStatus(dbc dbctx.Context, functionRunID string) ([]*RequirementStatusRow, error)
	ListByTransactionWithStatus(dbc dbctx.Context, transactionID string) ([]*RequirementStatusRow, error)
}

type requirementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	return &requirementRepo{db: db, log: baseLog.With("repo", "RequirementRepo")}
}

func (r *requirementRepo) Create(dbc dbctx.Context, reqs []*domain.FunctionRequirement) error {
	if len(reqs) == 0 {
		return nil
	}
	return wrapDB(handle(dbc, r.db).Create(&reqs).Error, "create requirements")
}

const requirementOrder = "CASE WHEN dep_pos >= 0 THEN 0 ELSE 1 END, ABS(dep_pos) ASC, version_pos ASC"

func (r *requirementRepo) ListByRun(dbc dbctx.Context, functionRunID string) ([]*domain.FunctionRequirement, error) {
	var out []*domain.FunctionRequirement
	err := handle(dbc, r.db).
		Where("function_run_id = ?", functionRunID).
		Order(requirementOrder).
		Find(&out).Error
	return out, wrapDB(err, "list requirements of run %s", functionRunID)
}

func (r *requirementRepo) ListByRunWithStatus(dbc dbctx.Context, functionRunID string) ([]*RequirementStatusRow, error) {
	var out []*RequirementStatusRow
	err := handle(dbc, r.db).
		Table("function_requirements req").
		Select("req.*, fr.status AS producer_status").
		Joins("LEFT JOIN table_data_versions tdv ON tdv.id = req.requirement_table_data_version_id").
		Joins("LEFT JOIN function_runs fr ON fr.id = tdv.function_run_id").
		Where("req.function_run_id = ?", functionRunID).
		Order("CASE WHEN req.dep_pos >= 0 THEN 0 ELSE 1 END, ABS(req.dep_pos) ASC, req.version_pos ASC").
		Find(&out).Error
	return out, wrapDB(err, "list requirement statuses of run %s", functionRunID)
}

func (r *requirementRepo) ListByTransactionWithStatus(dbc dbctx.Context, transactionID string) ([]*RequirementStatusRow, error) {
	var out []*RequirementStatusRow
	err := handle(dbc, r.db).
		Table("function_requirements req").
		Select("req.*, fr.status AS producer_status").
		Joins("LEFT JOIN table_data_versions tdv ON tdv.id = req.requirement_table_data_version_id").
		Joins("LEFT JOIN function_runs fr ON fr.id = tdv.function_run_id").
		Where("req.transaction_id = ?", transactionID).
		Find(&out).Error
	return out, wrapDB(err, "list requirement statuses of transaction %s", transactionID)
}
