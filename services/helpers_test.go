package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
)

var t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func seedBatch(t *testing.T, store *memstore.Store, id, name, course, teacher string, students ...string) {
	t.Helper()
	b := &model.Batch{ID: id, Name: name, Course: course, TeacherID: teacher, Students: students}
	if err := store.CreateBatch(context.Background(), b); err != nil {
		t.Fatalf("seed batch %s: %v", id, err)
	}
}

func seedUser(t *testing.T, store *memstore.Store, id string, role model.Role, batchID *string) {
	t.Helper()
	u := &model.User{ID: id, Name: id, Email: id + "@example.com", Role: role, BatchID: batchID}
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func seedVideo(t *testing.T, store *memstore.Store, v model.ClassroomVideo) {
	t.Helper()
	if v.VideoSource == "" {
		v.VideoSource = model.VideoSourceYouTube
	}
	if err := store.CreateVideo(context.Background(), &v); err != nil {
		t.Fatalf("seed video %s: %v", v.ID, err)
	}
}

func roster(t *testing.T, store *memstore.Store, batchID string) []string {
	t.Helper()
	b, err := store.GetBatch(context.Background(), batchID)
	if err != nil {
		t.Fatalf("load batch %s: %v", batchID, err)
	}
	out := append([]string(nil), b.Students...)
	sort.Strings(out)
	return out
}

func batchOf(t *testing.T, store *memstore.Store, userID string) string {
	t.Helper()
	u, err := store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("load user %s: %v", userID, err)
	}
	if u.BatchID == nil {
		return ""
	}
	return *u.BatchID
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type fakeLocker struct {
	held     bool
	err      error
	acquired int
	released int
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if f.err != nil {
		return func() {}, false, f.err
	}
	if f.held {
		return func() {}, false, nil
	}
	f.held = true
	f.acquired++
	return func() {
		f.held = false
		f.released++
	}, true, nil
}
