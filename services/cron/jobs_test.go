package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
	"github.com/sahilchouksey/cohort-lms/services"
)

func newTestManager(t *testing.T, opts Options) (*CronManager, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	batch := "B1"
	if err := store.CreateBatch(ctx, &model.Batch{ID: batch, Name: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateUser(ctx, &model.User{ID: "s1", Email: "s1@x.io", Role: model.RoleStudent, BatchID: &batch}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"v1", "v2"} {
		v := &model.ClassroomVideo{ID: id, BatchID: &batch, ExternalContentID: "yt1", VideoSource: model.VideoSourceYouTube}
		if err := store.CreateVideo(ctx, v); err != nil {
			t.Fatal(err)
		}
	}
	roster := services.NewRosterService(store, store, nil)
	dedupe := services.NewVideoDedupeService(store, store, nil)
	return NewCronManager(nil, roster, dedupe, opts, nil), store
}

func TestRunRosterSweep(t *testing.T) {
	m, store := newTestManager(t, Options{})
	if err := m.RunRosterSweep(); err != nil {
		t.Fatalf("RunRosterSweep: %v", err)
	}
	b, _ := store.GetBatch(context.Background(), "B1")
	if len(b.Students) != 1 || b.Students[0] != "s1" {
		t.Errorf("roster = %v", b.Students)
	}

	store.FailOn("ListBatches", errors.New("down"))
	if err := m.RunRosterSweep(); err == nil {
		t.Error("expected job error")
	}
}

func TestRunDedupeAudit(t *testing.T) {
	t.Run("dry run by default", func(t *testing.T) {
		m, store := newTestManager(t, Options{})
		writes := store.TotalWrites()
		if err := m.RunDedupeAudit(); err != nil {
			t.Fatal(err)
		}
		if store.TotalWrites() != writes {
			t.Error("audit wrote without DedupeApply")
		}
	})

	t.Run("apply", func(t *testing.T) {
		m, store := newTestManager(t, Options{DedupeApply: true})
		if err := m.RunDedupeAudit(); err != nil {
			t.Fatal(err)
		}
		if store.Writes("UnassignVideos") != 1 {
			t.Errorf("UnassignVideos writes = %d, want 1", store.Writes("UnassignVideos"))
		}
	})
}

func TestRegisterJobs(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	if err := m.registerJobs(); err != nil {
		t.Fatal(err)
	}
	if got := len(m.cron.Entries()); got != 2 {
		t.Errorf("registered %d jobs, want 2", got)
	}
}
