package catalog

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type TableRepo interface {
	Create(dbc dbctx.Context, t *domain.Table) error
	GetByID(dbc dbctx.Context, id string) (*domain.Table, error)
	GetByName(dbc dbctx.Context, collectionID, name string) (*domain.Table, error)
	ListByFunction(dbc dbctx.Context, functionID string) ([]*domain.Table, error)
	ListByCollection(dbc dbctx.Context, collectionID string) ([]*domain.Table, error)
	List(dbc dbctx.Context, collectionID string, q *listing.Query) ([]*domain.Table, error)
	// Repoint keeps the stable table id while moving the table onto a new
	// active version produced by a new function version.
	Repoint(dbc dbctx.Context, tableID, functionID, tableVersionID string, paramPos int) error
	Delete(dbc dbctx.Context, tableID string) error

	CreateVersion(dbc dbctx.Context, v *domain.TableVersion) error
	GetVersion(dbc dbctx.Context, id string) (*domain.TableVersion, error)
	LatestVersion(dbc dbctx.Context, tableID string) (*domain.TableVersion, error)
	ListVersionsByFunctionVersion(dbc dbctx.Context, functionVersionID string) ([]*domain.TableVersion, error)

	CreateDependency(dbc dbctx.Context, d *domain.Dependency) error
	GetDependencyByEdge(dbc dbctx.Context, functionID, tableID string) (*domain.Dependency, error)
	CreateDependencyVersion(dbc dbctx.Context, v *domain.DependencyVersion) error
	// ActiveDependencyVersions are the input bindings of one function
	// version, ordered the way requirements must be emitted: positive
	// dep_pos ascending first, then negative by absolute value.
	ActiveDependencyVersions(dbc dbctx.Context, functionVersionID string) ([]*domain.DependencyVersion, error)
	ActiveDependencyVersionsOnTable(dbc dbctx.Context, tableID string) ([]*domain.DependencyVersion, error)

	CreateTrigger(dbc dbctx.Context, t *domain.Trigger) error
	GetTriggerByEdge(dbc dbctx.Context, functionID, tableID string) (*domain.Trigger, error)
	CreateTriggerVersion(dbc dbctx.Context, v *domain.TriggerVersion) error
	ActiveTriggerVersions(dbc dbctx.Context, functionVersionID string) ([]*domain.TriggerVersion, error)
	// ActiveTriggersOnTables finds the consumer function versions whose
	// active trigger version references any of the given tables, restricted
	// to versions that are still current for their function.
	ActiveTriggersOnTables(dbc dbctx.Context, tableIDs []string) ([]*domain.TriggerVersion, error)
}

type tableRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTableRepo(db *gorm.DB, baseLog *logger.Logger) TableRepo {
	return &tableRepo{db: db, log: baseLog.With("repo", "TableRepo")}
}

func (r *tableRepo) Create(dbc dbctx.Context, t *domain.Table) error {
	return wrapDB(handle(dbc, r.db).Create(t).Error, "create table")
}

func (r *tableRepo) GetByID(dbc dbctx.Context, id string) (*domain.Table, error) {
	var t domain.Table
	if err := handle(dbc, r.db).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, wrapDB(err, "table %s", id)
	}
	return &t, nil
}

func (r *tableRepo) GetByName(dbc dbctx.Context, collectionID, name string) (*domain.Table, error) {
	var t domain.Table
	err := handle(dbc, r.db).
		Where("collection_id = ? AND name = ?", collectionID, name).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "table %q", name)
	}
	return &t, nil
}

func (r *tableRepo) ListByFunction(dbc dbctx.Context, functionID string) ([]*domain.Table, error) {
	var out []*domain.Table
	err := handle(dbc, r.db).
		Where("function_id = ?", functionID).
		Order("function_param_pos ASC").
		Find(&out).Error
	return out, wrapDB(err, "list tables of function %s", functionID)
}

func (r *tableRepo) ListByCollection(dbc dbctx.Context, collectionID string) ([]*domain.Table, error) {
	var out []*domain.Table
	err := handle(dbc, r.db).
		Where("collection_id = ?", collectionID).
		Order("name ASC").
		Find(&out).Error
	return out, wrapDB(err, "list tables of collection %s", collectionID)
}

func (r *tableRepo) List(dbc dbctx.Context, collectionID string, q *listing.Query) ([]*domain.Table, error) {
	var out []*domain.Table
	err := q.Apply(handle(dbc, r.db).
		Model(&domain.Table{}).
		Where("collection_id = ? AND function_param_pos >= 0", collectionID)).
		Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list tables")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *tableRepo) Repoint(dbc dbctx.Context, tableID, functionID, tableVersionID string, paramPos int) error {
	err := handle(dbc, r.db).
		Model(&domain.Table{}).
		Where("id = ?", tableID).
		Updates(map[string]interface{}{
			"function_id":        functionID,
			"table_version_id":   tableVersionID,
			"function_param_pos": paramPos,
		}).Error
	return wrapDB(err, "repoint table %s", tableID)
}

func (r *tableRepo) Delete(dbc dbctx.Context, tableID string) error {
	err := handle(dbc, r.db).Where("id = ?", tableID).Delete(&domain.Table{}).Error
	return wrapDB(err, "delete table %s", tableID)
}

func (r *tableRepo) CreateVersion(dbc dbctx.Context, v *domain.TableVersion) error {
	return wrapDB(handle(dbc, r.db).Create(v).Error, "create table version")
}

func (r *tableRepo) GetVersion(dbc dbctx.Context, id string) (*domain.TableVersion, error) {
	var v domain.TableVersion
	if err := handle(dbc, r.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrapDB(err, "table version %s", id)
	}
	return &v, nil
}

func (r *tableRepo) LatestVersion(dbc dbctx.Context, tableID string) (*domain.TableVersion, error) {
	var v domain.TableVersion
	err := handle(dbc, r.db).
		Where("table_id = ?", tableID).
		Order("id DESC").
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "latest version of table %s", tableID)
	}
	return &v, nil
}

func (r *tableRepo) ListVersionsByFunctionVersion(dbc dbctx.Context, functionVersionID string) ([]*domain.TableVersion, error) {
	var out []*domain.TableVersion
	err := handle(dbc, r.db).
		Where("function_version_id = ?", functionVersionID).
		Order("function_param_pos ASC").
		Find(&out).Error
	return out, wrapDB(err, "list table versions of %s", functionVersionID)
}

func (r *tableRepo) CreateDependency(dbc dbctx.Context, d *domain.Dependency) error {
	return wrapDB(handle(dbc, r.db).Create(d).Error, "create dependency")
}

func (r *tableRepo) GetDependencyByEdge(dbc dbctx.Context, functionID, tableID string) (*domain.Dependency, error) {
	var d domain.Dependency
	err := handle(dbc, r.db).
		Where("function_id = ? AND table_id = ?", functionID, tableID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "dependency edge")
	}
	return &d, nil
}

func (r *tableRepo) CreateDependencyVersion(dbc dbctx.Context, v *domain.DependencyVersion) error {
	return wrapDB(handle(dbc, r.db).Create(v).Error, "create dependency version")
}

func (r *tableRepo) ActiveDependencyVersions(dbc dbctx.Context, functionVersionID string) ([]*domain.DependencyVersion, error) {
	var out []*domain.DependencyVersion
	err := handle(dbc, r.db).
		Where("function_version_id = ? AND status = ?", functionVersionID, domain.VersionActive).
		Order("CASE WHEN dep_pos >= 0 THEN 0 ELSE 1 END, ABS(dep_pos) ASC").
		Find(&out).Error
	return out, wrapDB(err, "list dependency versions of %s", functionVersionID)
}

func (r *tableRepo) ActiveDependencyVersionsOnTable(dbc dbctx.Context, tableID string) ([]*domain.DependencyVersion, error) {
	var out []*domain.DependencyVersion
	err := handle(dbc, r.db).
		Where("table_id = ? AND status = ?", tableID, domain.VersionActive).
		Find(&out).Error
	return out, wrapDB(err, "list dependency versions on table %s", tableID)
}

func (r *tableRepo) CreateTrigger(dbc dbctx.Context, t *domain.Trigger) error {
	return wrapDB(handle(dbc, r.db).Create(t).Error, "create trigger")
}

func (r *tableRepo) GetTriggerByEdge(dbc dbctx.Context, functionID, tableID string) (*domain.Trigger, error) {
	var t domain.Trigger
	err := handle(dbc, r.db).
		Where("function_id = ? AND trigger_table_id = ?", functionID, tableID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "trigger edge")
	}
	return &t, nil
}

func (r *tableRepo) CreateTriggerVersion(dbc dbctx.Context, v *domain.TriggerVersion) error {
	return wrapDB(handle(dbc, r.db).Create(v).Error, "create trigger version")
}

func (r *tableRepo) ActiveTriggerVersions(dbc dbctx.Context, functionVersionID string) ([]*domain.TriggerVersion, error) {
	var out []*domain.TriggerVersion
	err := handle(dbc, r.db).
		Where("function_version_id = ? AND status = ?", functionVersionID, domain.VersionActive).
		Find(&out).Error
	return out, wrapDB(err, "list trigger versions of %s", functionVersionID)
}

func (r *tableRepo) ActiveTriggersOnTables(dbc dbctx.Context, tableIDs []string) ([]*domain.TriggerVersion, error) {
	if len(tableIDs) == 0 {
		return nil, nil
	}
	var out []*domain.TriggerVersion
	err := handle(dbc, r.db).
		Table("trigger_versions tv").
		Select("tv.*").
		Joins("JOIN functions f ON f.function_version_id = tv.function_version_id").
		Where("tv.trigger_table_id IN ? AND tv.status = ?", tableIDs, domain.VersionActive).
		Find(&out).Error
	return out, wrapDB(err, "list triggers on tables")
}
