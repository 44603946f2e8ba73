package catalog

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type TableDataVersionRepo interface {
	Create(dbc dbctx.Context, versions []*domain.TableDataVersion) error
	GetByID(dbc dbctx.Context, id string) (*domain.TableDataVersion, error)
	ListByRun(dbc dbctx.Context, functionRunID string) ([]*domain.TableDataVersion, error)
	ListByTable(dbc dbctx.Context, tableID string, q *listing.Query) ([]*domain.TableDataVersion, error)

	// Timeline walks a table's data versions with has_data = true, newest
	// first. committedOnly restricts the walk to versions whose producing
	// run already committed. offset skips that many timeline entries.
	Timeline(dbc dbctx.Context, tableID string, committedOnly bool, limit, offset int) ([]*domain.TableDataVersion, error)
	// TimelineOffset locates a fixed data version on the timeline and
	// returns how many entries back from head it sits.
	TimelineOffset(dbc dbctx.Context, tableID, dataVersionID string) (int, error)

	SetHasData(dbc dbctx.Context, id string, hasData bool) error
	StampCommittedByTransaction(dbc dbctx.Context, transactionID string) error
	// ProducerStatus reads the status of the run that owns a data version.
	ProducerStatus(dbc dbctx.Context, id string) (domain.FunctionRunStatus, error)

	CreatePartitions(dbc dbctx.Context, parts []*domain.TablePartition) error
	ListPartitions(dbc dbctx.Context, tableDataVersionID string) ([]*domain.TablePartition, error)
}

type tableDataVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTableDataVersionRepo(db *gorm.DB, baseLog *logger.Logger) TableDataVersionRepo {
	return &tableDataVersionRepo{db: db, log: baseLog.With("repo", "TableDataVersionRepo")}
}

func (r *tableDataVersionRepo) Create(dbc dbctx.Context, versions []*domain.TableDataVersion) error {
	if len(versions) == 0 {
		return nil
	}
	return wrapDB(handle(dbc, r.db).Create(&versions).Error, "create table data versions")
}

func (r *tableDataVersionRepo) GetByID(dbc dbctx.Context, id string) (*domain.TableDataVersion, error) {
	var v domain.TableDataVersion
	if err := handle(dbc, r.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrapDB(err, "table data version %s", id)
	}
	return &v, nil
}

func (r *tableDataVersionRepo) ListByRun(dbc dbctx.Context, functionRunID string) ([]*domain.TableDataVersion, error) {
	var out []*domain.TableDataVersion
	err := handle(dbc, r.db).
		Where("function_run_id = ?", functionRunID).
		Order("function_param_pos ASC").
		Find(&out).Error
	return out, wrapDB(err, "list data versions of run %s", functionRunID)
}

func (r *tableDataVersionRepo) ListByTable(dbc dbctx.Context, tableID string, q *listing.Query) ([]*domain.TableDataVersion, error) {
	var out []*domain.TableDataVersion
	err := q.Apply(handle(dbc, r.db).
		Table("table_data_versions__with_function").
		Where("table_id = ?", tableID)).
		Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list data versions")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *tableDataVersionRepo) timelineQuery(dbc dbctx.Context, tableID string, committedOnly bool) *gorm.DB {
	q := handle(dbc, r.db).
		Table("table_data_versions tdv").
		Joins("JOIN function_runs fr ON fr.id = tdv.function_run_id").
		Where("tdv.table_id = ? AND tdv.has_data = true", tableID)
	if committedOnly {
		q = q.Where("fr.status = ?", domain.RunCommitted)
	} else {
		q = q.Where("fr.status IN ?", []domain.FunctionRunStatus{
			domain.RunDone, domain.RunCommitted, domain.RunYanked,
		})
	}
	return q.Order("tdv.id DESC")
}

func (r *tableDataVersionRepo) Timeline(dbc dbctx.Context, tableID string, committedOnly bool, limit, offset int) ([]*domain.TableDataVersion, error) {
	var out []*domain.TableDataVersion
	err := r.timelineQuery(dbc, tableID, committedOnly).
		Select("tdv.*").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, wrapDB(err, "timeline of table %s", tableID)
}

func (r *tableDataVersionRepo) TimelineOffset(dbc dbctx.Context, tableID, dataVersionID string) (int, error) {
	var count int64
	err := r.timelineQuery(dbc, tableID, false).
		Where("tdv.id > ?", dataVersionID).
		Count(&count).Error
	if err != nil {
		return 0, wrapDB(err, "timeline offset of %s", dataVersionID)
	}
	return int(count), nil
}

func (r *tableDataVersionRepo) SetHasData(dbc dbctx.Context, id string, hasData bool) error {
	err := handle(dbc, r.db).
		Model(&domain.TableDataVersion{}).
		Where("id = ?", id).
		Update("has_data", hasData).Error
	return wrapDB(err, "set has_data on %s", id)
}

func (r *tableDataVersionRepo) StampCommittedByTransaction(dbc dbctx.Context, transactionID string) error {
	err := handle(dbc, r.db).
		Model(&domain.TableDataVersion{}).
		Where("transaction_id = ? AND commited_on IS NULL", transactionID).
		Update("commited_on", gorm.Expr("NOW()")).Error
	return wrapDB(err, "stamp data versions of transaction %s", transactionID)
}

func (r *tableDataVersionRepo) ProducerStatus(dbc dbctx.Context, id string) (domain.FunctionRunStatus, error) {
	var status string
	err := handle(dbc, r.db).
		Table("table_data_versions tdv").
		Joins("JOIN function_runs fr ON fr.id = tdv.function_run_id").
		Where("tdv.id = ?", id).
		Select("fr.status").
		Scan(&status).Error
	if err != nil {
		return "", wrapDB(err, "producer status of %s", id)
	}
	if status == "" {
		return "", wrapDB(gorm.ErrRecordNotFound, "producer status of %s", id)
	}
	return domain.FunctionRunStatus(status), nil
}

func (r *tableDataVersionRepo) CreatePartitions(dbc dbctx.Context, parts []*domain.TablePartition) error {
	if len(parts) == 0 {
		return nil
	}
	return wrapDB(handle(dbc, r.db).Create(&parts).Error, "create table partitions")
}

func (r *tableDataVersionRepo) ListPartitions(dbc dbctx.Context, tableDataVersionID string) ([]*domain.TablePartition, error) {
	var out []*domain.TablePartition
	err := handle(dbc, r.db).
		Where("table_data_version_id = ?", tableDataVersionID).
		Order("partition_key ASC").
		Find(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return out, wrapDB(err, "list partitions of %s", tableDataVersionID)
}
