// Package catalog is the typed façade over the relational store. Every
// mutation of catalog state goes through these repos; multi-row flows batch
// into one short transaction via InTx.
package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
)

type Catalog struct {
	db *gorm.DB

	Collections    CollectionRepo
	Functions      FunctionRepo
	Tables         TableRepo
	Executions     ExecutionRepo
	Runs           FunctionRunRepo
	DataVersions   TableDataVersionRepo
	Requirements   RequirementRepo
	WorkerMessages WorkerMessageRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Catalog {
	return &Catalog{
		db:             db,
		Collections:    NewCollectionRepo(db, baseLog),
		Functions:      NewFunctionRepo(db, baseLog),
		Tables:         NewTableRepo(db, baseLog),
		Executions:     NewExecutionRepo(db, baseLog),
		Runs:           NewFunctionRunRepo(db, baseLog),
		DataVersions:   NewTableDataVersionRepo(db, baseLog),
		Requirements:   NewRequirementRepo(db, baseLog),
		WorkerMessages: NewWorkerMessageRepo(db, baseLog),
	}
}

func (c *Catalog) DB() *gorm.DB { return c.db }

// InTx runs fn inside one catalog transaction. Partial application of a
// flow is forbidden; any error rolls every row back.
func (c *Catalog) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.WithTx(ctx, tx))
	})
}

func handle(dbc dbctx.Context, base *gorm.DB) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return base.WithContext(dbc.Ctx)
}

// wrapDB maps store errors into the typed taxonomy: missing rows are
// NotFound, everything else is Transient so callers may retry.
func wrapDB(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apierr.Wrap(apierr.NotFound, err, format, args...)
	}
	return apierr.Wrap(apierr.Transient, err, format, args...)
}
