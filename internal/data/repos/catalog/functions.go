package catalog

import (
	"errors"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type FunctionRepo interface {
	Create(dbc dbctx.Context, f *domain.Function) error
	GetByID(dbc dbctx.Context, id string) (*domain.Function, error)
	GetByName(dbc dbctx.Context, collectionID, name string) (*domain.Function, error)
	ListByCollection(dbc dbctx.Context, collectionID string) ([]*domain.Function, error)
	List(dbc dbctx.Context, collectionID string, q *listing.Query) ([]*domain.Function, error)
	// SetVersion flips the weak current-version pointer; the version row
	// must already exist.
	SetVersion(dbc dbctx.Context, functionID, functionVersionID string) error
	Rename(dbc dbctx.Context, functionID, name string) error
	Delete(dbc dbctx.Context, functionID string) error

	CreateVersion(dbc dbctx.Context, v *domain.FunctionVersion) error
	GetVersion(dbc dbctx.Context, id string) (*domain.FunctionVersion, error)
	// ListVersions returns every version of the function, oldest first.
	ListVersions(dbc dbctx.Context, functionID string) ([]*domain.FunctionVersion, error)
	SetVersionStatus(dbc dbctx.Context, functionVersionID string, status domain.VersionStatus) error

	CreateBundle(dbc dbctx.Context, b *domain.Bundle) error
	GetBundle(dbc dbctx.Context, id string) (*domain.Bundle, error)
}

type functionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFunctionRepo(db *gorm.DB, baseLog *logger.Logger) FunctionRepo {
	return &functionRepo{db: db, log: baseLog.With("repo", "FunctionRepo")}
}

func (r *functionRepo) Create(dbc dbctx.Context, f *domain.Function) error {
	return wrapDB(handle(dbc, r.db).Create(f).Error, "create function")
}

func (r *functionRepo) GetByID(dbc dbctx.Context, id string) (*domain.Function, error) {
	var f domain.Function
	if err := handle(dbc, r.db).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, wrapDB(err, "function %s", id)
	}
	return &f, nil
}

func (r *functionRepo) GetByName(dbc dbctx.Context, collectionID, name string) (*domain.Function, error) {
	var f domain.Function
	err := handle(dbc, r.db).
		Where("collection_id = ? AND name = ?", collectionID, name).
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "function %q", name)
	}
	return &f, nil
}

func (r *functionRepo) ListByCollection(dbc dbctx.Context, collectionID string) ([]*domain.Function, error) {
	var out []*domain.Function
	err := handle(dbc, r.db).
		Where("collection_id = ?", collectionID).
		Order("name ASC").
		Find(&out).Error
	return out, wrapDB(err, "list functions of %s", collectionID)
}

func (r *functionRepo) List(dbc dbctx.Context, collectionID string, q *listing.Query) ([]*domain.Function, error) {
	var out []*domain.Function
	err := q.Apply(handle(dbc, r.db).Model(&domain.Function{}).Where("collection_id = ?", collectionID)).
		Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list functions")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}

func (r *functionRepo) SetVersion(dbc dbctx.Context, functionID, functionVersionID string) error {
	err := handle(dbc, r.db).
		Model(&domain.Function{}).
		Where("id = ?", functionID).
		Update("function_version_id", functionVersionID).Error
	return wrapDB(err, "set function version")
}

func (r *functionRepo) Rename(dbc dbctx.Context, functionID, name string) error {
	err := handle(dbc, r.db).
		Model(&domain.Function{}).
		Where("id = ?", functionID).
		Update("name", name).Error
	return wrapDB(err, "rename function")
}

func (r *functionRepo) Delete(dbc dbctx.Context, functionID string) error {
	err := handle(dbc, r.db).
		Where("id = ?", functionID).
		Delete(&domain.Function{}).Error
	return wrapDB(err, "delete function %s", functionID)
}

func (r *functionRepo) CreateVersion(dbc dbctx.Context, v *domain.FunctionVersion) error {
	return wrapDB(handle(dbc, r.db).Create(v).Error, "create function version")
}

func (r *functionRepo) GetVersion(dbc dbctx.Context, id string) (*domain.FunctionVersion, error) {
	var v domain.FunctionVersion
	if err := handle(dbc, r.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, wrapDB(err, "function version %s", id)
	}
	return &v, nil
}

func (r *functionRepo) ListVersions(dbc dbctx.Context, functionID string) ([]*domain.FunctionVersion, error) {
	var out []*domain.FunctionVersion
	err := handle(dbc, r.db).
		Where("function_id = ?", functionID).
		Order("id ASC").
		Find(&out).Error
	return out, wrapDB(err, "list versions of %s", functionID)
}

func (r *functionRepo) SetVersionStatus(dbc dbctx.Context, functionVersionID string, status domain.VersionStatus) error {
	err := handle(dbc, r.db).
		Model(&domain.FunctionVersion{}).
		Where("id = ?", functionVersionID).
		Update("status", status).Error
	return wrapDB(err, "set function version status")
}

func (r *functionRepo) CreateBundle(dbc dbctx.Context, b *domain.Bundle) error {
	return wrapDB(handle(dbc, r.db).Create(b).Error, "create bundle")
}

func (r *functionRepo) GetBundle(dbc dbctx.Context, id string) (*domain.Bundle, error) {
	var b domain.Bundle
	if err := handle(dbc, r.db).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, wrapDB(err, "bundle %s", id)
	}
	return &b, nil
}
