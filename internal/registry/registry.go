// Package registry implements the version-aware mutation flows of the
// catalog: register, update and delete of functions, and delete of tables
// and collections. Each flow runs as one catalog transaction; partial
// application is forbidden. The registry never leaves an active function
// pointing at a non-active version.
package registry

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
	"github.com/tabsdata/tabsdata-server/internal/pkg/logger"
	"github.com/tabsdata/tabsdata-server/internal/tableref"
)

type Registry struct {
	cat *catalog.Catalog
	log *logger.Logger
}

func New(cat *catalog.Catalog, baseLog *logger.Logger) *Registry {
	return &Registry{cat: cat, log: baseLog.With("component", "Registry")}
}

// Register creates a function, its first version, its output tables and
// its dependency and trigger edges. Frozen tables with a declared output's
// name are resurrected under their stable table id.
func (r *Registry) Register(ctx context.Context, collectionName string, decl FunctionDecl, byID string) (*domain.Function, error) {
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
		if existing, err := r.cat.Functions.GetByName(dbc, collection.ID, decl.Name); err != nil {
			return err
		} else if existing != nil {
			return apierr.New(apierr.Conflict, "function %q already exists in collection %q", decl.Name, collectionName)
		}

		fn, err = r.insertFunction(dbc, collection, parsed, byID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info("registered function", "collection", collectionName, "function", decl.Name, "function_id", fn.ID)
	return fn, nil
}

func (r *Registry) requireCollection(dbc dbctx.Context, name string) (*domain.Collection, error) {
	collection, err := r.cat.Collections.GetActiveByName(dbc, name)
	if err != nil {
		return nil, err
	}
	if collection == nil {
		return nil, apierr.New(apierr.NotFound, "collection %q not found", name)
	}
	return collection, nil
}

// insertFunction performs the ordered inserts shared by register and
// update: bundle, version, function row, output tables, dependency and
// trigger edges. existing, when non-nil, is the function being updated;
// its stable id is kept and only the version pointer and name move.
func (r *Registry) insertFunction(dbc dbctx.Context, collection *domain.Collection, parsed *parsedDecl, byID string, existing *domain.Function) (*domain.Function, error) {
	now := time.Now().UTC()
	decl := parsed.decl
	fnID := ids.New()
	if existing != nil {
		fnID = existing.ID
	}

	bundle := &domain.Bundle{
		ID:           ids.New(),
		CollectionID: collection.ID,
		Hash:         decl.BundleHash,
		CreatedOn:    now,
		CreatedByID:  byID,
	}
	if err := r.cat.Functions.CreateBundle(dbc, bundle); err != nil {
		return nil, err
	}

	fv := r.newVersion(collection.ID, fnID, parsed, bundle.ID, byID, now)
	if err := r.cat.Functions.CreateVersion(dbc, fv); err != nil {
		return nil, err
	}

	var fn *domain.Function
	if existing != nil {
		if err := r.cat.Functions.SetVersion(dbc, fnID, fv.ID); err != nil {
			return nil, err
		}
		if existing.Name != decl.Name {
			if err := r.cat.Functions.Rename(dbc, fnID, decl.Name); err != nil {
				return nil, err
			}
		}
		fn = existing
		fn.Name = decl.Name
		fn.FunctionVersionID = fv.ID
	} else {
		fn = &domain.Function{
			ID:                fnID,
			CollectionID:      collection.ID,
			Name:              decl.Name,
			FunctionVersionID: fv.ID,
			CreatedOn:         now,
			CreatedByID:       byID,
		}
		if err := r.cat.Functions.Create(dbc, fn); err != nil {
			return nil, err
		}
	}

	if err := r.insertOutputs(dbc, collection, fn, fv, parsed, byID, now); err != nil {
		return nil, err
	}
	if err := r.insertEdges(dbc, collection, fn, fv, parsed, now); err != nil {
		return nil, err
	}
	return fn, nil
}

func (r *Registry) newVersion(collectionID, fnID string, parsed *parsedDecl, bundleID, byID string, now time.Time) *domain.FunctionVersion {
	decl := parsed.decl
	runtime := datatypes.JSON(decl.RuntimeValues)
	if len(runtime) == 0 {
		runtime = datatypes.JSON([]byte("{}"))
	}
	return &domain.FunctionVersion{
		ID:             ids.New(),
		CollectionID:   collectionID,
		FunctionID:     fnID,
		Name:           decl.Name,
		Description:    decl.Description,
		RuntimeValues:  runtime,
		DataLocation:   decl.DataLocation,
		StorageVersion: "2",
		BundleID:       bundleID,
		Snippet:        decl.Snippet,
		Decorator:      decl.Decorator,
		TransactionBy:  decl.TransactionBy,
		MaxRetries:     decl.MaxRetries,
		Status:         domain.VersionActive,
		DefinedOn:      now,
		DefinedByID:    byID,
	}
}

// insertOutputs creates a version row per declared output. A frozen table
// with the same name is resurrected keeping its stable table id; an active
// one owned by another function is a conflict.
func (r *Registry) insertOutputs(dbc dbctx.Context, collection *domain.Collection, fn *domain.Function, fv *domain.FunctionVersion, parsed *parsedDecl, byID string, now time.Time) error {
	for _, out := range parsed.outputs() {
		existing, err := r.cat.Tables.GetByName(dbc, collection.ID, out.name)
		if err != nil {
			return err
		}

		tableID := ids.New()
		if existing != nil {
			latest, err := r.cat.Tables.LatestVersion(dbc, existing.ID)
			if err != nil {
				return err
			}
			if latest != nil && latest.Status == domain.VersionActive {
				return apierr.New(apierr.Conflict, "table %q is already produced by another function", out.name)
			}
			tableID = existing.ID
		}

		tv := &domain.TableVersion{
			ID:                ids.New(),
			CollectionID:      collection.ID,
			TableID:           tableID,
			Name:              out.name,
			FunctionVersionID: fv.ID,
			FunctionParamPos:  out.pos,
			Private:           out.private,
			Partitioned:       false,
			Status:            domain.VersionActive,
			DefinedOn:         now,
			DefinedByID:       byID,
		}
		if err := r.cat.Tables.CreateVersion(dbc, tv); err != nil {
			return err
		}

		if existing != nil {
			if err := r.cat.Tables.Repoint(dbc, existing.ID, fn.ID, tv.ID, out.pos); err != nil {
				return err
			}
			continue
		}
		table := &domain.Table{
			ID:               tableID,
			CollectionID:     collection.ID,
			Name:             out.name,
			FunctionID:       fn.ID,
			TableVersionID:   tv.ID,
			FunctionParamPos: out.pos,
			Private:          out.private,
			CreatedOn:        now,
			CreatedByID:      byID,
		}
		if err := r.cat.Tables.Create(dbc, table); err != nil {
			return err
		}
	}
	return nil
}

// insertEdges creates the dependency and trigger rows. The system state
// dependency reads the previous state version, one behind the slot this
// run will write.
func (r *Registry) insertEdges(dbc dbctx.Context, collection *domain.Collection, fn *domain.Function, fv *domain.FunctionVersion, parsed *parsedDecl, now time.Time) error {
	type edge struct {
		ref    tableref.Ref
		depPos int
		raw    string
	}
	var edges []edge
	for i, ref := range parsed.deps {
		raw := ref.RawVersions
		if raw == "" {
			raw = "HEAD"
		}
		edges = append(edges, edge{ref: ref, depPos: i, raw: raw})
	}
	if parsed.decl.InitialValues {
		stateRef := tableref.Ref{Collection: collection.Name, Table: InitialValuesTable}
		edges = append(edges, edge{ref: stateRef, depPos: -1, raw: "HEAD^1"})
	}

	for _, e := range edges {
		depCollection, err := r.requireCollection(dbc, e.ref.Collection)
		if err != nil {
			return err
		}
		table, err := r.cat.Tables.GetByName(dbc, depCollection.ID, e.ref.Table)
		if err != nil {
			return err
		}
		if table == nil {
			return apierr.New(apierr.NotFound, "dependency table %q not found in collection %q", e.ref.Table, e.ref.Collection)
		}

		dep, err := r.cat.Tables.GetDependencyByEdge(dbc, fn.ID, table.ID)
		if err != nil {
			return err
		}
		if dep == nil {
			dep = &domain.Dependency{
				ID:                ids.New(),
				CollectionID:      collection.ID,
				FunctionID:        fn.ID,
				TableCollectionID: depCollection.ID,
				TableID:           table.ID,
				CreatedOn:         now,
			}
			if err := r.cat.Tables.CreateDependency(dbc, dep); err != nil {
				return err
			}
		}
		dv := &domain.DependencyVersion{
			ID:                ids.New(),
			CollectionID:      collection.ID,
			DependencyID:      dep.ID,
			FunctionVersionID: fv.ID,
			TableID:           table.ID,
			DepPos:            e.depPos,
			TableVersions:     e.raw,
			Status:            domain.VersionActive,
			DefinedOn:         now,
		}
		if err := r.cat.Tables.CreateDependencyVersion(dbc, dv); err != nil {
			return err
		}
	}

	for _, ref := range parsed.triggers {
		trigCollection, err := r.requireCollection(dbc, ref.Collection)
		if err != nil {
			return err
		}
		table, err := r.cat.Tables.GetByName(dbc, trigCollection.ID, ref.Table)
		if err != nil {
			return err
		}
		if table == nil {
			return apierr.New(apierr.NotFound, "trigger table %q not found in collection %q", ref.Table, ref.Collection)
		}
		if table.FunctionID == fn.ID {
			return apierr.New(apierr.Invalid, "function %q cannot trigger on its own output %q", fn.Name, ref.Table)
		}

		trig, err := r.cat.Tables.GetTriggerByEdge(dbc, fn.ID, table.ID)
		if err != nil {
			return err
		}
		if trig == nil {
			trig = &domain.Trigger{
				ID:                  ids.New(),
				CollectionID:        collection.ID,
				FunctionID:          fn.ID,
				TriggerCollectionID: trigCollection.ID,
				TriggerTableID:      table.ID,
				CreatedOn:           now,
			}
			if err := r.cat.Tables.CreateTrigger(dbc, trig); err != nil {
				return err
			}
		}
		tv := &domain.TriggerVersion{
			ID:                ids.New(),
			CollectionID:      collection.ID,
			TriggerID:         trig.ID,
			FunctionVersionID: fv.ID,
			TriggerTableID:    table.ID,
			Status:            domain.VersionActive,
			DefinedOn:         now,
		}
		if err := r.cat.Tables.CreateTriggerVersion(dbc, tv); err != nil {
			return err
		}
	}
	return nil
}
