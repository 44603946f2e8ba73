package registry

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/tableref"
)

// DeleteFunction marks the function's version Deleted, freezes every table
// it produces and removes the function row. User data is not deleted.
func (r *Registry) DeleteFunction(ctx context.Context, collectionName, functionName, byID string) error {
	err := r.cat.InTx(ctx, func(dbc dbctx.Context) error {
		collection, err := r.requireCollection(dbc, collectionName)
		if err != nil {
			return err
		}
		fn, err := r.cat.Functions.GetByName(dbc, collection.ID, functionName)
		if err != nil {
			return err
		}
		if fn == nil {
			return apierr.New(apierr.NotFound, "function %q not found in collection %q", functionName, collectionName)
		}
		return r.deleteFunction(dbc, fn, byID)
	})
	if err != nil {
		return err
	}
	r.log.Info("deleted function", "collection", collectionName, "function", functionName)
	return nil
}

func (r *Registry) deleteFunction(dbc dbctx.Context, fn *domain.Function, byID string) error {
	if err := r.dropVersion(dbc, fn, domain.VersionDeleted, byID); err != nil {
		return err
	}
	return r.cat.Functions.Delete(dbc, fn.ID)
}

// DeleteTable removes a table row. Only frozen tables may go; a Deleted
// version row is inserted, and any function still reading or producing the
// table is frozen. The table's data versions are retained.
func (r *Registry) DeleteTable(ctx context.Context, collectionName, tableName, byID string) error {
	err := r.cat.InTx(ctx, func(dbc dbctx.Context) error {
		collection, err := r.requireCollection(dbc, collectionName)
		if err != nil {
			return err
		}
		table, err := r.cat.Tables.GetByName(dbc, collection.ID, tableName)
		if err != nil {
			return err
		}
		if table == nil {
			return apierr.New(apierr.NotFound, "table %q not found in collection %q", tableName, collectionName)
		}
		return r.deleteTable(dbc, table, byID)
	})
	if err != nil {
		return err
	}
	r.log.Info("deleted table", "collection", collectionName, "table", tableName)
	return nil
}

func (r *Registry) deleteTable(dbc dbctx.Context, table *domain.Table, byID string) error {
	now := time.Now().UTC()

	latest, err := r.cat.Tables.LatestVersion(dbc, table.ID)
	if err != nil {
		return err
	}
	if latest == nil || latest.Status != domain.VersionFrozen {
		return apierr.New(apierr.PreconditionFailed, "table %q is not frozen", table.Name)
	}

	tv := &domain.TableVersion{
		ID:                ids.New(),
		CollectionID:      table.CollectionID,
		TableID:           table.ID,
		Name:              table.Name,
		FunctionVersionID: latest.FunctionVersionID,
		FunctionParamPos:  table.FunctionParamPos,
		Private:           table.Private,
		Partitioned:       table.Partitioned,
		Status:            domain.VersionDeleted,
		DefinedOn:         now,
		DefinedByID:       byID,
	}
	if err := r.cat.Tables.CreateVersion(dbc, tv); err != nil {
		return err
	}

	// Freeze every function still bound to this table, as reader or
	// producer.
	deps, err := r.cat.Tables.ActiveDependencyVersionsOnTable(dbc, table.ID)
	if err != nil {
		return err
	}
	frozen := map[string]bool{}
	for _, dep := range deps {
		if frozen[dep.FunctionVersionID] {
			continue
		}
		if err := r.cat.Functions.SetVersionStatus(dbc, dep.FunctionVersionID, domain.VersionFrozen); err != nil {
			return err
		}
		frozen[dep.FunctionVersionID] = true
	}
	if producer, err := r.cat.Functions.GetByID(dbc, table.FunctionID); err == nil && producer != nil {
		if !frozen[producer.FunctionVersionID] {
			if err := r.cat.Functions.SetVersionStatus(dbc, producer.FunctionVersionID, domain.VersionFrozen); err != nil {
				return err
			}
		}
	}

	return r.cat.Tables.Delete(dbc, table.ID)
}

// DeleteCollection folds delete-function over every function and
// delete-table over every table, leaves first, then soft-deletes the
// collection row.
func (r *Registry) DeleteCollection(ctx context.Context, collectionName, byID string) error {
	err := r.cat.InTx(ctx, func(dbc dbctx.Context) error {
		collection, err := r.requireCollection(dbc, collectionName)
		if err != nil {
			return err
		}

		functions, err := r.cat.Functions.ListByCollection(dbc, collection.ID)
		if err != nil {
			return err
		}
		for _, fn := range functions {
			if err := r.deleteFunction(dbc, fn, byID); err != nil {
				return err
			}
		}

		tables, err := r.cat.Tables.ListByCollection(dbc, collection.ID)
		if err != nil {
			return err
		}
		for _, table := range tables {
			if err := r.deleteTable(dbc, table, byID); err != nil {
				return err
			}
		}

		return r.cat.Collections.SoftDelete(dbc, collection.ID, time.Now().UTC())
	})
	if err != nil {
		return err
	}
	r.log.Info("deleted collection", "collection", collectionName)
	return nil
}

// CreateCollection registers a new namespace.
func (r *Registry) CreateCollection(ctx context.Context, name, description, byID string) (*domain.Collection, error) {
	if !tableref.ValidName(name) {
		return nil, apierr.New(apierr.Invalid, "invalid collection name %q", name)
	}
	var collection *domain.Collection
	err := r.cat.InTx(ctx, func(dbc dbctx.Context) error {
		existing, err := r.cat.Collections.GetActiveByName(dbc, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.New(apierr.Conflict, "collection %q already exists", name)
		}
		now := time.Now().UTC()
		collection = &domain.Collection{
			ID:           ids.New(),
			Name:         name,
			Description:  description,
			CreatedOn:    now,
			CreatedByID:  byID,
			ModifiedOn:   now,
			ModifiedByID: byID,
		}
		return r.cat.Collections.Create(dbc, collection)
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("created collection", "collection", name, "collection_id", collection.ID)
	return collection, nil
}
