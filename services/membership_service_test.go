package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
)

func TestAssignStudentsToBatch_MovesStudentBetweenBatches(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "Cohort A", "", "T1", "s1")
	seedBatch(t, store, "B2", "Cohort B", "", "T2")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B1"))

	svc := NewMembershipService(store, store, nil)
	res, err := svc.AssignStudentsToBatch(context.Background(), "B2", []string{"s1"})
	if err != nil {
		t.Fatalf("AssignStudentsToBatch: %v", err)
	}

	if got := batchOf(t, store, "s1"); got != "B2" {
		t.Errorf("s1.batch_id = %q, want B2", got)
	}
	if got := roster(t, store, "B1"); len(got) != 0 {
		t.Errorf("B1 roster = %v, want empty", got)
	}
	if got := roster(t, store, "B2"); !equalStrings(got, []string{"s1"}) {
		t.Errorf("B2 roster = %v, want [s1]", got)
	}
	if removed := res.RemovedFrom["B1"]; !equalStrings(removed, []string{"s1"}) {
		t.Errorf("RemovedFrom[B1] = %v", removed)
	}
	if !res.RosterChanged || res.PointersUpdated != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAssignStudentsToBatch_IsIdempotent(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "Cohort A", "Data Science", "T1", "s3")
	seedBatch(t, store, "B2", "Cohort B", "", "T2", "s1")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B2"))
	seedUser(t, store, "s2", model.RoleStudent, nil)
	seedUser(t, store, "s3", model.RoleStudent, strPtr("B1"))

	svc := NewMembershipService(store, store, nil)
	ctx := context.Background()

	first, err := svc.AssignStudentsToBatch(ctx, "B1", []string{"s1", "s2", "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Writes() == 0 {
		t.Fatal("first call should write")
	}
	if first.CoursesUpdated != 2 {
		t.Errorf("CoursesUpdated = %d, want 2", first.CoursesUpdated)
	}

	before := store.TotalWrites()
	second, err := svc.AssignStudentsToBatch(ctx, "B1", []string{"s2", "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Writes() != 0 || store.TotalWrites() != before {
		t.Errorf("second call wrote: result %+v, store writes %d -> %d", second, before, store.TotalWrites())
	}

	if got := roster(t, store, "B1"); !equalStrings(got, []string{"s1", "s2", "s3"}) {
		t.Errorf("B1 roster = %v", got)
	}
	u, _ := store.GetUser(ctx, "s2")
	if u.Course == nil || *u.Course != "Data Science" {
		t.Errorf("course not propagated: %v", u.Course)
	}
}

func TestAssignStudentsToBatch_SingleBatchInvariant(t *testing.T) {
	store := memstore.New()
	for _, id := range []string{"B1", "B2", "B3"} {
		seedBatch(t, store, id, id, "", "")
	}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		seedUser(t, store, id, model.RoleStudent, nil)
	}

	svc := NewMembershipService(store, store, nil)
	ctx := context.Background()
	steps := []struct {
		batch    string
		students []string
		remove   string
	}{
		{batch: "B1", students: []string{"s1", "s2"}},
		{batch: "B2", students: []string{"s2", "s3"}},
		{batch: "B3", students: []string{"s1", "s4"}},
		{batch: "B2", remove: "s4"},
		{batch: "B3", remove: "s3"},
		{batch: "B1", students: []string{"s3", "s4"}},
		{batch: "B1", remove: "s4"},
	}
	for i, step := range steps {
		var err error
		if step.remove != "" {
			_, err = svc.RemoveStudentFromBatch(ctx, step.batch, step.remove)
		} else {
			_, err = svc.AssignStudentsToBatch(ctx, step.batch, step.students)
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}

		batches, _ := store.ListBatches(ctx, repository.BatchFilter{})
		for _, s := range []string{"s1", "s2", "s3", "s4"} {
			var in []string
			for _, b := range batches {
				if b.HasStudent(s) {
					in = append(in, b.ID)
				}
			}
			pointer := batchOf(t, store, s)
			if len(in) > 1 {
				t.Fatalf("step %d: %s in several rosters %v", i, s, in)
			}
			if len(in) == 1 && in[0] != pointer {
				t.Fatalf("step %d: %s in roster %s but points at %q", i, s, in[0], pointer)
			}
			if len(in) == 0 && pointer != "" {
				t.Fatalf("step %d: %s points at %s but is in no roster", i, s, pointer)
			}
		}
	}
}

func TestAssignStudentsToBatch_Errors(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "Cohort A", "", "")
	seedUser(t, store, "s1", model.RoleStudent, nil)
	seedUser(t, store, "t1", model.RoleTeacher, nil)
	svc := NewMembershipService(store, store, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		batch    string
		students []string
		check    func(error) bool
	}{
		{"missing batch id", " ", []string{"s1"}, IsValidation},
		{"no students", "B1", nil, IsValidation},
		{"blank student id", "B1", []string{"s1", "null"}, IsValidation},
		{"unknown batch", "B9", []string{"s1"}, IsNotFound},
		{"unknown student", "B1", []string{"s1", "s9"}, IsNotFound},
		{"not a student", "B1", []string{"t1"}, IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AssignStudentsToBatch(ctx, tt.batch, tt.students)
			if err == nil || !tt.check(err) {
				t.Errorf("got %v", err)
			}
		})
	}

	var nf *NotFoundError
	_, err := svc.AssignStudentsToBatch(ctx, "B9", []string{"s1"})
	if !errors.As(err, &nf) || nf.Resource != "Batch" {
		t.Errorf("want NotFoundError(Batch), got %v", err)
	}
	if store.Writes("UpdateBatchStudents") != 0 || store.Writes("SetUsersBatch") != 0 {
		t.Error("failed validation must not write")
	}
}

func TestAssignStudentsToBatch_StoreFailureIsPartialAndHealable(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "", "s1")
	seedBatch(t, store, "B2", "B", "", "")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B1"))

	boom := errors.New("write timeout")
	store.FailOn("SetUsersBatch", boom)

	svc := NewMembershipService(store, store, nil)
	_, err := svc.AssignStudentsToBatch(context.Background(), "B2", []string{"s1"})
	if !IsExternalStore(err) || !errors.Is(err, boom) {
		t.Fatalf("want ExternalStoreError wrapping boom, got %v", err)
	}
	// roster steps ran, pointer did not
	if got := roster(t, store, "B2"); !equalStrings(got, []string{"s1"}) {
		t.Errorf("B2 roster = %v", got)
	}

	store.FailOn("SetUsersBatch", nil)
	sweep, err := NewRosterService(store, store, nil).RebuildAllRosters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sweep.Changed) == 0 {
		t.Fatal("sweep should repair the partial assignment")
	}
	if got := roster(t, store, "B1"); !equalStrings(got, []string{"s1"}) {
		t.Errorf("after sweep B1 roster = %v, want [s1] (pointer still names B1)", got)
	}
	if got := roster(t, store, "B2"); len(got) != 0 {
		t.Errorf("after sweep B2 roster = %v, want empty", got)
	}
}

func TestAssignStudentsToBatch_Lock(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "")
	seedUser(t, store, "s1", model.RoleStudent, nil)

	locker := &fakeLocker{}
	svc := NewMembershipService(store, store, nil).WithLocker(locker)
	if _, err := svc.AssignStudentsToBatch(context.Background(), "B1", []string{"s1"}); err != nil {
		t.Fatal(err)
	}
	if locker.acquired != 1 || locker.released != 1 {
		t.Errorf("lock acquired %d released %d", locker.acquired, locker.released)
	}

	locker.held = true
	if _, err := svc.AssignStudentsToBatch(context.Background(), "B1", []string{"s1"}); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("want ErrOperationInProgress, got %v", err)
	}

	locker.held = false
	locker.err = errors.New("redis down")
	if _, err := svc.RemoveStudentFromBatch(context.Background(), "B1", "s1"); !IsExternalStore(err) {
		t.Errorf("want ExternalStoreError, got %v", err)
	}
}

func TestRemoveStudentFromBatch(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "B1", "A", "", "", "s1", "s2")
	seedBatch(t, store, "B2", "B", "", "", "s2")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("B1"))
	seedUser(t, store, "s2", model.RoleStudent, strPtr("B2"))
	svc := NewMembershipService(store, store, nil)
	ctx := context.Background()

	res, err := svc.RemoveStudentFromBatch(ctx, "B1", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.RosterChanged || !res.PointerCleared {
		t.Errorf("result = %+v", res)
	}
	if got := batchOf(t, store, "s1"); got != "" {
		t.Errorf("s1 still points at %q", got)
	}
	if _, err := store.GetUser(ctx, "s1"); err != nil {
		t.Error("student must not be deleted")
	}

	// stale roster entry: s2 belongs to B2, removal from B1 keeps that membership
	res, err = svc.RemoveStudentFromBatch(ctx, "B1", "s2")
	if err != nil {
		t.Fatal(err)
	}
	if !res.RosterChanged || res.PointerCleared {
		t.Errorf("result = %+v", res)
	}
	if got := batchOf(t, store, "s2"); got != "B2" {
		t.Errorf("s2 pointer = %q, want B2", got)
	}

	if _, err := svc.RemoveStudentFromBatch(ctx, "B1", "ghost"); !IsNotFound(err) {
		t.Errorf("want NotFoundError, got %v", err)
	}
	if _, err := svc.RemoveStudentFromBatch(ctx, "", "s1"); !IsValidation(err) {
		t.Errorf("want ValidationError, got %v", err)
	}
}
