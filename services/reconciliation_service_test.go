package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
)

func TestReconcileBatches_TeacherMatchWins(t *testing.T) {
	old := []BatchRecord{{ID: "fs1", Name: "Cohort A", TeacherID: "T1"}}
	local := []BatchRecord{
		{ID: "m2", Name: "Cohort A", TeacherID: "T2"},
		{ID: "m1", Name: "Cohort A", TeacherID: "T1"},
	}
	res := ReconcileBatches(old, local)
	if res.Mapping["fs1"] != "m1" {
		t.Fatalf("fs1 -> %q, want m1", res.Mapping["fs1"])
	}
	if res.Matches[0].MatchedBy != MatchedByNameTeacher {
		t.Errorf("MatchedBy = %q", res.Matches[0].MatchedBy)
	}
}

func TestReconcileBatches_FallbacksAndTotality(t *testing.T) {
	old := []BatchRecord{
		{ID: "fs1", Name: " Cohort A ", TeacherID: "T9"},
		{ID: "fs2", Name: "Cohort Z", TeacherID: "T1"},
		{ID: "fs3", Name: "", TeacherID: "T1"},
		{ID: "fs4", Name: "Cohort B"},
		{ID: "fs1", Name: "Cohort B"},
	}
	local := []BatchRecord{
		{ID: "m1", Name: "Cohort A", TeacherID: "T1"},
		{ID: "m3", Name: "Cohort A", TeacherID: "T3"},
		{ID: "m4", Name: "Cohort B", TeacherID: ""},
	}
	res := ReconcileBatches(old, local)

	if res.Mapping["fs1"] != "m1" || res.Matches[0].MatchedBy != MatchedByName {
		t.Errorf("name fallback should take the first local batch: %+v", res.Matches[0])
	}
	if res.Mapping["fs4"] != "m4" {
		t.Errorf("fs4 -> %q, want m4", res.Mapping["fs4"])
	}
	if !equalStrings(res.Unmatched, []string{"fs2", "fs3"}) {
		t.Errorf("Unmatched = %v", res.Unmatched)
	}
	if res.LegacyTotal != 4 {
		t.Errorf("LegacyTotal = %d, want 4 distinct ids", res.LegacyTotal)
	}

	for _, id := range []string{"fs1", "fs2", "fs3", "fs4"} {
		_, mapped := res.Mapping[id]
		unmatched := false
		for _, u := range res.Unmatched {
			if u == id {
				unmatched = true
			}
		}
		if mapped == unmatched {
			t.Errorf("%s: mapped=%v unmatched=%v, want exactly one", id, mapped, unmatched)
		}
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != WarningUnmatchedLegacyBatch {
		t.Errorf("warnings = %+v", res.Warnings)
	}
}

// Batch names are not unique. When the legacy teacher is unknown locally the
// name-only fallback picks the first batch with that name, which may be the
// wrong cohort.
func TestReconcileBatches_DuplicateNamesAcrossTeachers(t *testing.T) {
	old := []BatchRecord{{ID: "fs1", Name: "Evening", TeacherID: "legacy-teacher-7"}}
	local := []BatchRecord{
		{ID: "m1", Name: "Evening", TeacherID: "T1"},
		{ID: "m2", Name: "Evening", TeacherID: "T2"},
	}
	if got := ReconcileBatches(old, local).Mapping["fs1"]; got != "m1" {
		t.Errorf("fs1 -> %q; the first same-name batch is expected", got)
	}

	// a teacher translation resolves the ambiguity
	res := ReconcileBatches(old, local, WithTeacherTranslation(map[string]string{"legacy-teacher-7": "T2"}))
	if res.Mapping["fs1"] != "m2" || res.Matches[0].MatchedBy != MatchedByNameTeacher {
		t.Errorf("with translation: %+v", res.Matches)
	}
}

type fakeLegacyReader struct {
	batches   []legacy.Batch
	users     []legacy.User
	videos    []legacy.Video
	err       error
	usersErr  error
	videosErr error
}

func (f *fakeLegacyReader) ListBatches(ctx context.Context) ([]legacy.Batch, error) {
	return f.batches, f.err
}

func (f *fakeLegacyReader) ListUsers(ctx context.Context) ([]legacy.User, error) {
	return f.users, f.usersErr
}

func (f *fakeLegacyReader) ListVideos(ctx context.Context) ([]legacy.Video, error) {
	return f.videos, f.videosErr
}

func hasWarning(warnings []ConsistencyWarning, kind string, ids ...string) bool {
	for _, w := range warnings {
		if w.Kind == kind && equalStrings(w.IDs, ids) {
			return true
		}
	}
	return false
}

func TestReconciliationService_Run(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")
	seedBatch(t, store, "m2", "Cohort A", "", "T2")
	teacher := &model.User{ID: "T2", Email: "t2@x.io", Role: model.RoleTeacher, LegacyID: strPtr("fsT2")}
	if err := store.CreateUser(context.Background(), teacher); err != nil {
		t.Fatal(err)
	}

	export := `{"batches": {
		"fs1": {"name": "Cohort A", "teacherId": "fsT2"},
		"fs2": {"name": "Cohort Q"}
	}}`
	reader, err := legacy.DecodeExport(strings.NewReader(export))
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewReconciliationService(reader, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Mapping["fs1"] != "m2" {
		t.Errorf("fs1 -> %q, want m2 through the migrated teacher", res.Mapping["fs1"])
	}
	if !equalStrings(res.Unmatched, []string{"fs2"}) {
		t.Errorf("Unmatched = %v", res.Unmatched)
	}
}

func TestReconciliationService_RunAbortsOnReadError(t *testing.T) {
	store := memstore.New()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")

	boom := errors.New("legacy store unreachable")
	svc := NewReconciliationService(&fakeLegacyReader{err: boom}, store, nil)
	res, err := svc.Run(context.Background())
	if res != nil || !IsExternalStore(err) || !errors.Is(err, boom) {
		t.Errorf("got %v, %v", res, err)
	}

	for name, reader := range map[string]*fakeLegacyReader{
		"users":  {usersErr: boom},
		"videos": {videosErr: boom},
	} {
		res, err := NewReconciliationService(reader, store, nil).Run(context.Background())
		if res != nil || !IsExternalStore(err) {
			t.Errorf("%s: got %v, %v", name, res, err)
		}
	}

	store.FailOn("ListBatches", errors.New("down"))
	svc = NewReconciliationService(&fakeLegacyReader{batches: []legacy.Batch{{ID: "fs1", Name: "Cohort A"}}}, store, nil)
	if res, err := svc.Run(context.Background()); res != nil || !IsExternalStore(err) {
		t.Errorf("got %v, %v", res, err)
	}
}

func TestReconciliationService_Apply(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")
	seedBatch(t, store, "fs9", "Clash", "", "")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("fs1"))
	seedUser(t, store, "s2", model.RoleStudent, strPtr("fs1"))
	seedUser(t, store, "s3", model.RoleStudent, strPtr("fs9"))
	seedVideo(t, store, video("v1", strPtr("fs1"), "yt1", "L1", "", at(1)))

	reader := &fakeLegacyReader{batches: []legacy.Batch{
		{ID: "fs1", Name: "Cohort A", TeacherID: "T1"},
		{ID: "fs9", Name: "Cohort A", TeacherID: "T1"},
	}}
	svc := NewReconciliationService(reader, store, nil)
	res, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	applied, err := svc.Apply(ctx, res)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.UsersRepointed != 2 || applied.VideosRepointed != 1 || applied.LegacyIDsRecorded != 1 {
		t.Errorf("applied = %+v", applied)
	}
	if !equalStrings(applied.Skipped, []string{"fs9"}) || applied.Warnings[0].Kind != WarningLegacyIDClash {
		t.Errorf("fs9 names a live local batch and must be skipped: %+v", applied)
	}
	if got := batchOf(t, store, "s3"); got != "fs9" {
		t.Errorf("s3 repointed to %q", got)
	}
	if got := roster(t, store, "m1"); !equalStrings(got, []string{"s1", "s2"}) {
		t.Errorf("m1 roster = %v", got)
	}
	b, _ := store.GetBatch(ctx, "m1")
	if b.LegacyID == nil || *b.LegacyID != "fs1" {
		t.Errorf("legacy id not recorded: %v", b.LegacyID)
	}
	v, _ := store.GetVideo(ctx, "v1")
	if v.BatchID == nil || *v.BatchID != "m1" {
		t.Errorf("video not repointed: %v", v.BatchID)
	}

	writes := store.TotalWrites()
	again, err := svc.Apply(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if again.UsersRepointed != 0 || again.LegacyIDsRecorded != 0 || len(again.Rosters) != 0 || store.TotalWrites() != writes {
		t.Errorf("second apply changed state: %+v", again)
	}
}

func TestReconciliationService_ApplyTwoLegacyBatchesOneLocal(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")
	seedUser(t, store, "s1", model.RoleStudent, strPtr("fs1"))
	seedUser(t, store, "s2", model.RoleStudent, strPtr("fs2"))

	// fs2's teacher is unknown locally, so the name fallback also lands on m1
	reader := &fakeLegacyReader{batches: []legacy.Batch{
		{ID: "fs1", Name: "Cohort A", TeacherID: "T1"},
		{ID: "fs2", Name: "Cohort A", TeacherID: "T9"},
	}}
	svc := NewReconciliationService(reader, store, nil)
	res, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mapping["fs1"] != "m1" || res.Mapping["fs2"] != "m1" {
		t.Fatalf("mapping = %v", res.Mapping)
	}

	applied, err := svc.Apply(ctx, res)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied.LegacyIDsRecorded != 1 || applied.UsersRepointed != 2 {
		t.Errorf("applied = %+v", applied)
	}
	if !hasWarning(applied.Warnings, WarningAmbiguousLegacyBatch, "fs2") {
		t.Errorf("warnings = %+v", applied.Warnings)
	}
	b, _ := store.GetBatch(ctx, "m1")
	if b.LegacyID == nil || *b.LegacyID != "fs1" {
		t.Errorf("m1 records %v, want the first legacy id fs1", b.LegacyID)
	}
	if got := roster(t, store, "m1"); !equalStrings(got, []string{"s1", "s2"}) {
		t.Errorf("m1 roster = %v", got)
	}

	recorded := store.Writes("SetBatchLegacyID")
	writes := store.TotalWrites()
	for i := 0; i < 2; i++ {
		res, err := svc.Run(ctx)
		if err != nil {
			t.Fatal(err)
		}
		again, err := svc.Apply(ctx, res)
		if err != nil {
			t.Fatal(err)
		}
		if again.LegacyIDsRecorded != 0 || store.Writes("SetBatchLegacyID") != recorded || store.TotalWrites() != writes {
			t.Fatalf("rerun %d changed state: %+v", i+1, again)
		}
	}
	b, _ = store.GetBatch(ctx, "m1")
	if *b.LegacyID != "fs1" {
		t.Errorf("legacy id flipped to %s", *b.LegacyID)
	}
}

func TestReconciliationService_LinksTeachersByEmail(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")
	seedBatch(t, store, "m2", "Cohort A", "", "T2")
	teacher := &model.User{ID: "T2", Email: "ravi@x.io", Role: model.RoleTeacher}
	if err := store.CreateUser(ctx, teacher); err != nil {
		t.Fatal(err)
	}

	reader := &fakeLegacyReader{
		batches: []legacy.Batch{{ID: "fs1", Name: "Cohort A", TeacherID: "fsT2"}},
		users: []legacy.User{
			{ID: "fsT2", Email: " Ravi@X.io", Role: "teacher"},
			{ID: "fsT7", Email: "nobody@x.io", Role: "teacher"},
		},
	}
	svc := NewReconciliationService(reader, store, nil)
	res, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mapping["fs1"] != "m2" || res.Matches[0].MatchedBy != MatchedByNameTeacher {
		t.Fatalf("fs1 -> %q (%s), want m2 through the teacher's email", res.Mapping["fs1"], res.Matches[0].MatchedBy)
	}
	if len(res.TeacherLinks) != 1 || res.TeacherLinks[0] != (TeacherLink{LegacyID: "fsT2", LocalID: "T2", MatchedBy: "email"}) {
		t.Fatalf("teacher links = %+v", res.TeacherLinks)
	}

	applied, err := svc.Apply(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if applied.TeacherIDsRecorded != 1 {
		t.Errorf("applied = %+v", applied)
	}
	u, _ := store.GetUser(ctx, "T2")
	if u.LegacyID == nil || *u.LegacyID != "fsT2" {
		t.Fatalf("teacher legacy id = %v", u.LegacyID)
	}

	writes := store.Writes("SetUserLegacyID")
	res, err = svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.TeacherLinks[0].MatchedBy != "legacy_id" {
		t.Errorf("second run should find the recorded id: %+v", res.TeacherLinks)
	}
	if again, err := svc.Apply(ctx, res); err != nil || again.TeacherIDsRecorded != 0 || store.Writes("SetUserLegacyID") != writes {
		t.Errorf("second apply: %+v, %v", again, err)
	}
}

func TestReconciliationService_LinksVideosByContentID(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	seedBatch(t, store, "m1", "Cohort A", "", "T1")
	seedBatch(t, store, "m2", "Cohort B", "", "T1")
	seedVideo(t, store, video("v1", strPtr("m1"), "yt1", "L1", "", at(1)))
	seedVideo(t, store, video("v2", strPtr("m2"), "yt1", "L1", "", at(2)))
	seedVideo(t, store, video("v3", nil, "yt2", "L2", "", at(3)))
	seedVideo(t, store, video("v4", nil, "yt3", "L3", "", at(4)))
	seedVideo(t, store, video("v5", nil, "yt3", "L3", "", at(5)))

	reader := &fakeLegacyReader{
		batches: []legacy.Batch{
			{ID: "fs1", Name: "Cohort A", TeacherID: "T1"},
			{ID: "fs2", Name: "Cohort B", TeacherID: "T1"},
		},
		videos: []legacy.Video{
			{ID: "lv1", BatchID: "fs2", ExternalContentID: "yt1"},
			{ID: "lv2", ExternalContentID: "yt2"},
			{ID: "lv3", ExternalContentID: "yt3"},
			{ID: "lv4", ExternalContentID: "yt9"},
		},
	}
	svc := NewReconciliationService(reader, store, nil)
	res, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []VideoLink{{LegacyID: "lv1", LocalID: "v2"}, {LegacyID: "lv2", LocalID: "v3"}}
	if len(res.VideoLinks) != len(want) || res.VideoLinks[0] != want[0] || res.VideoLinks[1] != want[1] {
		t.Fatalf("video links = %+v", res.VideoLinks)
	}
	if !hasWarning(res.Warnings, WarningUnlinkedLegacyVideo, "lv3", "lv4") {
		t.Errorf("warnings = %+v", res.Warnings)
	}

	applied, err := svc.Apply(ctx, res)
	if err != nil {
		t.Fatal(err)
	}
	if applied.VideoIDsRecorded != 2 {
		t.Errorf("applied = %+v", applied)
	}
	if v, _ := store.GetVideo(ctx, "v2"); v.LegacyID == nil || *v.LegacyID != "lv1" {
		t.Errorf("v2 legacy id = %v", v.LegacyID)
	}

	writes := store.TotalWrites()
	res, err = svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again, err := svc.Apply(ctx, res); err != nil || again.VideoIDsRecorded != 0 || store.TotalWrites() != writes {
		t.Errorf("second apply: %+v, %v", again, err)
	}
}
