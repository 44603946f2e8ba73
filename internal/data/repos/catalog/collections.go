package catalog

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/data/listing"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type CollectionRepo interface {
	Create(dbc dbctx.Context, c *domain.Collection) error
	GetByID(dbc dbctx.Context, id string) (*domain.Collection, error)
	// GetActiveByName finds the non-deleted collection with the given name;
	// nil without error when absent.
	GetActiveByName(dbc dbctx.Context, name string) (*domain.Collection, error)
	SoftDelete(dbc dbctx.Context, id string, now time.Time) error
	List(dbc dbctx.Context, q *listing.Query) ([]*domain.Collection, error)
}

type collectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCollectionRepo(db *gorm.DB, baseLog *logger.Logger) CollectionRepo {
	return &collectionRepo{db: db, log: baseLog.With("repo", "CollectionRepo")}
}

func (r *collectionRepo) Create(dbc dbctx.Context, c *domain.Collection) error {
	return wrapDB(handle(dbc, r.db).Create(c).Error, "create collection")
}

func (r *collectionRepo) GetByID(dbc dbctx.Context, id string) (*domain.Collection, error) {
	var c domain.Collection
	err := handle(dbc, r.db).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, wrapDB(err, "collection %s", id)
	}
	return &c, nil
}

func (r *collectionRepo) GetActiveByName(dbc dbctx.Context, name string) (*domain.Collection, error) {
	var c domain.Collection
	err := handle(dbc, r.db).
		Where("name = ? AND name_when_deleted IS NULL", name).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDB(err, "collection %q", name)
	}
	return &c, nil
}

func (r *collectionRepo) SoftDelete(dbc dbctx.Context, id string, now time.Time) error {
	err := handle(dbc, r.db).
		Model(&domain.Collection{}).
		Where("id = ? AND name_when_deleted IS NULL", id).
		Updates(map[string]interface{}{
			"name_when_deleted": gorm.Expr("name"),
			"name":              gorm.Expr("name || '.' || id"),
			"deleted_on":        now,
			"modified_on":       now,
		}).Error
	return wrapDB(err, "delete collection %s", id)
}

func (r *collectionRepo) List(dbc dbctx.Context, q *listing.Query) ([]*domain.Collection, error) {
	var out []*domain.Collection
	err := q.Apply(handle(dbc, r.db).Model(&domain.Collection{}).Where("name_when_deleted IS NULL")).
		Find(&out).Error
	if err != nil {
		return nil, wrapDB(err, "list collections")
	}
	if q.Reversed() {
		out = listing.Reverse(out)
	}
	return out, nil
}
