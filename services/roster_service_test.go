package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
)

func TestRebuildRoster_EmptyBatch(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "", "s1", "s2")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B2"))
	seedUser(t, store, "s2", model.RoleStudent, nil)

	res, err := NewRosterService(store, store, nil).RebuildRoster(context.Background(), "B1")
	if err != nil {
		t.Fatalf("RebuildRoster: %v", err)
	}
	if !res.Changed || len(res.Students) != 0 {
		t.Errorf("result = %+v", res)
	}
	if got := roster(t, store, "B1"); len(got) != 0 {
		t.Errorf("roster = %v, want empty", got)
	}
}

func TestRebuildRoster_SetComparisonAndIdempotence(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "", "s2", "s1")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B1"))
	seedUser(t, store, "s2", model.RoleStudent, strPtr(" B1 "))
	seedUser(t, store, "m1", model.RoleMentor, strPtr("B1"))
	seedUser(t, store, "s3", model.RoleStudent, strPtr("B1"))

	svc := NewRosterService(store, store, nil)
	ctx := context.Background()

	first, err := svc.RebuildRoster(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed || !equalStrings(first.Added, []string{"s3"}) || len(first.Removed) != 0 {
		t.Errorf("first = %+v", first)
	}
	want := []string{"s1", "s2", "s3"}
	if got := roster(t, store, "B1"); !equalStrings(got, want) {
		t.Errorf("roster = %v, want %v", got, want)
	}

	writes := store.Writes("UpdateBatchStudents")
	second, err := svc.RebuildRoster(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed || store.Writes("UpdateBatchStudents") != writes {
		t.Errorf("second rebuild wrote: %+v", second)
	}
	if got := roster(t, store, "B1"); !equalStrings(got, want) {
		t.Errorf("roster changed on second run: %v", got)
	}
}

func TestRebuildRoster_Errors(t *testing.T) {
	store := memstore.New()
	svc := NewRosterService(store, store, nil)

	if _, err := svc.RebuildRoster(context.Background(), "missing"); !IsNotFound(err) {
		t.Errorf("want NotFoundError, got %v", err)
	}
	if _, err := svc.RebuildRoster(context.Background(), "undefined"); !IsValidation(err) {
		t.Errorf("want ValidationError, got %v", err)
	}

	seedBatch(t, store, "B1", "A", "", "")
	store.FailOn("FindUsers", errors.New("timeout"))
	if _, err := svc.RebuildRoster(context.Background(), "B1"); !IsExternalStore(err) {
		t.Errorf("want ExternalStoreError, got %v", err)
	}
}

func TestRebuildAllRosters(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "", "s2")
	seedBatch(t, store, "B2", "B", "", "", "s2")
	seedBatch(t, store, "B3", "C", "", "")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B1"))
	seedUser(t, store, "s2", model.RoleStudent, strPtr("B2"))
	seedUser(t, store, "s3", model.RoleStudent, strPtr("gone"))
	seedUser(t, store, "s4", model.RoleStudent, strPtr("null"))

	svc := NewRosterService(store, store, nil)
	sweep, err := svc.RebuildAllRosters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sweep.Batches != 3 || len(sweep.Changed) != 1 || sweep.Unchanged != 2 {
		t.Errorf("sweep = %+v", sweep)
	}
	if got := roster(t, store, "B1"); !equalStrings(got, []string{"s1"}) {
		t.Errorf("B1 roster = %v", got)
	}
	if len(sweep.Warnings) != 1 || sweep.Warnings[0].Kind != WarningDanglingBatchPointer || !equalStrings(sweep.Warnings[0].IDs, []string{"s3"}) {
		t.Errorf("warnings = %+v", sweep.Warnings)
	}

	again, err := svc.RebuildAllRosters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Changed) != 0 {
		t.Errorf("second sweep changed %+v", again.Changed)
	}
}
