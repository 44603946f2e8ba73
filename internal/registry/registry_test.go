package registry

import (
	"context"
	"testing"

	"github.com/tabsdata/tabsdata-server/internal/data/repos/catalog"
	"github.com/tabsdata/tabsdata-server/internal/data/repos/testutil"
	"github.com/tabsdata/tabsdata-server/internal/domain"
	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
	"github.com/tabsdata/tabsdata-server/internal/pkg/dbctx"
	"github.com/tabsdata/tabsdata-server/internal/pkg/ids"
)

func setup(t *testing.T) (context.Context, *catalog.Catalog, *Registry) {
	t.Helper()
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	cat := catalog.New(tx, log)
	return context.Background(), cat, New(cat, log)
}

func TestRegisterFunction(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	fn, err := reg.Register(ctx, "examples", FunctionDecl{
		Name:       "pub",
		BundleHash: "h1",
		Tables:     []string{"persons"},
	}, ids.New())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	dbc := dbctx.New(ctx)
	fv, err := cat.Functions.GetVersion(dbc, fn.FunctionVersionID)
	if err != nil {
		t.Fatalf("GetVersion: %v", err)
	}
	if fv.Status != domain.VersionActive {
		t.Fatalf("function version status = %s, want A", fv.Status)
	}

	coll, _ := cat.Collections.GetActiveByName(dbc, "examples")
	table, err := cat.Tables.GetByName(dbc, coll.ID, "persons")
	if err != nil || table == nil {
		t.Fatalf("table persons not created: %v", err)
	}
	tv, err := cat.Tables.GetVersion(dbc, table.TableVersionID)
	if err != nil {
		t.Fatalf("table version: %v", err)
	}
	if tv.Status != domain.VersionActive {
		t.Fatalf("table version status = %s, want A", tv.Status)
	}
}

func TestRegisterDuplicateNameConflicts(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	by := ids.New()
	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"other"}}, by)
	if !apierr.IsKind(err, apierr.Conflict) {
		t.Fatalf("duplicate register: got %v, want Conflict", err)
	}
}

func TestResurrectionKeepsTableID(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	by := ids.New()
	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("register pub: %v", err)
	}
	dbc := dbctx.New(ctx)
	coll, _ := cat.Collections.GetActiveByName(dbc, "examples")
	before, _ := cat.Tables.GetByName(dbc, coll.ID, "persons")
	if before == nil {
		t.Fatal("persons missing after register")
	}

	if err := reg.DeleteFunction(ctx, "examples", "pub", by); err != nil {
		t.Fatalf("delete pub: %v", err)
	}
	latest, err := cat.Tables.LatestVersion(dbc, before.ID)
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if latest.Status != domain.VersionFrozen {
		t.Fatalf("persons latest status = %s, want F", latest.Status)
	}

	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub2", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("register pub2: %v", err)
	}
	after, _ := cat.Tables.GetByName(dbc, coll.ID, "persons")
	if after == nil {
		t.Fatal("persons missing after resurrection")
	}
	if after.ID != before.ID {
		t.Fatalf("table id changed across resurrection: %s != %s", after.ID, before.ID)
	}
	if after.TableVersionID == before.TableVersionID {
		t.Fatal("resurrection must allocate a fresh table version")
	}
	resurrected, _ := cat.Tables.GetVersion(dbc, after.TableVersionID)
	if resurrected.Status != domain.VersionActive {
		t.Fatalf("resurrected version status = %s, want A", resurrected.Status)
	}
}

func TestDeleteTableRequiresFrozen(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	by := ids.New()
	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := reg.DeleteTable(ctx, "examples", "persons", by)
	if !apierr.IsKind(err, apierr.PreconditionFailed) {
		t.Fatalf("delete active table: got %v, want PreconditionFailed", err)
	}

	if err := reg.DeleteFunction(ctx, "examples", "pub", by); err != nil {
		t.Fatalf("delete function: %v", err)
	}
	if err := reg.DeleteTable(ctx, "examples", "persons", by); err != nil {
		t.Fatalf("delete frozen table: %v", err)
	}

	dbc := dbctx.New(ctx)
	coll, _ := cat.Collections.GetActiveByName(dbc, "examples")
	table, _ := cat.Tables.GetByName(dbc, coll.ID, "persons")
	if table != nil {
		t.Fatal("table row should be gone after delete")
	}
}

func TestUpdateFreezesRemovedOutputs(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	by := ids.New()
	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"persons", "emails"}}, by); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Update(ctx, "examples", "pub", FunctionDecl{Name: "pub", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("update: %v", err)
	}

	dbc := dbctx.New(ctx)
	coll, _ := cat.Collections.GetActiveByName(dbc, "examples")

	persons, _ := cat.Tables.GetByName(dbc, coll.ID, "persons")
	personsLatest, _ := cat.Tables.LatestVersion(dbc, persons.ID)
	if personsLatest.Status != domain.VersionActive {
		t.Fatalf("persons should stay active, got %s", personsLatest.Status)
	}

	emails, _ := cat.Tables.GetByName(dbc, coll.ID, "emails")
	emailsLatest, _ := cat.Tables.LatestVersion(dbc, emails.ID)
	if emailsLatest.Status != domain.VersionFrozen {
		t.Fatalf("emails should be frozen after update, got %s", emailsLatest.Status)
	}
}

func TestDeleteCollection(t *testing.T) {
	ctx, cat, reg := setup(t)
	testutil.SeedCollection(t, ctx, cat.DB(), "examples")

	by := ids.New()
	if _, err := reg.Register(ctx, "examples", FunctionDecl{Name: "pub", Tables: []string{"persons"}}, by); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.DeleteCollection(ctx, "examples", by); err != nil {
		t.Fatalf("delete collection: %v", err)
	}

	dbc := dbctx.New(ctx)
	coll, err := cat.Collections.GetActiveByName(dbc, "examples")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if coll != nil {
		t.Fatal("collection should be soft-deleted")
	}
}
