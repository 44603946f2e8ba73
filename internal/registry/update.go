package registry

import (
	"context"
	"time"

	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
)

// Update replaces a function's definition with a new version. It mirrors
// Register, preceded by a drop pass that freezes the outputs the updated
// function no longer produces; history rows are never physically deleted.
// A rename requires the new name to be unused or owned by this function.
func (r *Registry) Update(ctx context.Context, collectionName, functionName string, decl FunctionDecl, byID string) (*domain.Function, error) {
	parsed, err := parseDecl(decl, collectionName)
	if err != nil {
		return nil, err
	}

	var fn *domain.Function
	err = r.cat.InTx(ctx, func(dbc dbctx.Context) error {
		collection, err := r.requireCollection(dbc, collectionName)
		if err != nil {
			return err
		}
		fn, err = r.cat.Functions.GetByName(dbc, collection.ID, functionName)
		if err != nil {
			return err
		}
		if fn == nil {
			return apierr.New(apierr.PreconditionFailed, "function %q not found in collection %q", functionName, collectionName)
		}
		if decl.Name != functionName {
			if other, err := r.cat.Functions.GetByName(dbc, collection.ID, decl.Name); err != nil {
				return err
			} else if other != nil && other.ID != fn.ID {
				return apierr.New(apierr.Conflict, "function name %q already in use", decl.Name)
			}
		}

		if err := r.dropVersion(dbc, fn, domain.VersionFrozen, byID); err != nil {
			return err
		}

		fn, err = r.insertFunction(dbc, collection, parsed, byID, fn)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("updated function", "collection", collectionName, "function", decl.Name, "function_version_id", fn.FunctionVersionID)
	return fn, nil
}

// dropVersion retires the function's current version: the version row and
// its dependency/trigger version rows take the given status, and every
// table it produces gets a new version row with that status while keeping
// its stable table id. Later registrations may resurrect those tables.
func (r *Registry) dropVersion(dbc dbctx.Context, fn *domain.Function, status domain.VersionStatus, byID string) error {
	now := time.Now().UTC()

	if err := r.cat.Functions.SetVersionStatus(dbc, fn.FunctionVersionID, status); err != nil {
		return err
	}

	tables, err := r.cat.Tables.ListByFunction(dbc, fn.ID)
	if err != nil {
		return err
	}
	for _, table := range tables {
		latest, err := r.cat.Tables.LatestVersion(dbc, table.ID)
		if err != nil {
			return err
		}
		if latest == nil || latest.Status != domain.VersionActive {
			continue
		}
		tv := &domain.TableVersion{
			ID:                ids.New(),
			CollectionID:      table.CollectionID,
			TableID:           table.ID,
			Name:              table.Name,
			FunctionVersionID: fn.FunctionVersionID,
			FunctionParamPos:  table.FunctionParamPos,
			Private:           table.Private,
			Partitioned:       table.Partitioned,
			Status:            domain.VersionFrozen,
			DefinedOn:         now,
			DefinedByID:       byID,
		}
		if err := r.cat.Tables.CreateVersion(dbc, tv); err != nil {
			return err
		}
		if err := r.cat.Tables.Repoint(dbc, table.ID, fn.ID, tv.ID, table.FunctionParamPos); err != nil {
			return err
		}
	}

	deps, err := r.cat.Tables.ActiveDependencyVersions(dbc, fn.FunctionVersionID)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		dv := &domain.DependencyVersion{
			ID:                ids.New(),
			CollectionID:      dep.CollectionID,
			DependencyID:      dep.DependencyID,
			FunctionVersionID: fn.FunctionVersionID,
			TableID:           dep.TableID,
			DepPos:            dep.DepPos,
			TableVersions:     dep.TableVersions,
			Status:            status,
			DefinedOn:         now,
		}
		if err := r.cat.Tables.CreateDependencyVersion(dbc, dv); err != nil {
			return err
		}
	}

	triggers, err := r.cat.Tables.ActiveTriggerVersions(dbc, fn.FunctionVersionID)
	if err != nil {
		return err
	}
	for _, trig := range triggers {
		tv := &domain.TriggerVersion{
			ID:                ids.New(),
			CollectionID:      trig.CollectionID,
			TriggerID:         trig.TriggerID,
			FunctionVersionID: fn.FunctionVersionID,
			TriggerTableID:    trig.TriggerTableID,
			Status:            status,
			DefinedOn:         now,
		}
		if err := r.cat.Tables.CreateTriggerVersion(dbc, tv); err != nil {
			return err
		}
	}
	return nil
}
