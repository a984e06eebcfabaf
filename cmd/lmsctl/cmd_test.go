package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sahilchouksey/cohort-lms/app"
	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/repository/memstore"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
)

const legacyExport = `{
  "batches": {
    "fs1": {"name": "Cohort A", "teacherId": "legacyT1"},
    "fs9": {"name": "Retired Cohort"}
  },
  "users": {
    "legacyT1": {"name": "Meera", "email": "Meera@X.io", "role": "teacher"}
  },
  "classroomVideos": {
    "lv1": {"title": "Intro", "batchId": "fs1", "videoSource": "youtube", "externalContentId": "yt1"}
  }
}`

func setup(t *testing.T) (*commandLine, *memstore.Store, *bytes.Buffer) {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()

	legacyPtr := "fs1"
	must(t, store.CreateUser(ctx, &model.User{ID: "T1", Email: "meera@x.io", Role: model.RoleTeacher}))
	must(t, store.CreateBatch(ctx, &model.Batch{ID: "A", Name: "Cohort A", Course: "web", TeacherID: "T1"}))
	must(t, store.CreateBatch(ctx, &model.Batch{ID: "B", Name: "Cohort B", Course: "web"}))
	must(t, store.CreateUser(ctx, &model.User{ID: "s1", Email: "s1@x.io", Role: model.RoleStudent, BatchID: &legacyPtr}))
	must(t, store.CreateUser(ctx, &model.User{ID: "s2", Email: "s2@x.io", Role: model.RoleStudent}))

	out := &bytes.Buffer{}
	cli := &commandLine{
		store: store,
		svc:   app.NewServices(store, nil, nil),
		openLegacy: func(ctx context.Context, source, exportPath string) (legacy.Reader, func(), error) {
			if source == "mongo" {
				return nil, func() {}, errors.New("connection refused")
			}
			r, err := legacy.DecodeExport(strings.NewReader(legacyExport))
			return r, func() {}, err
		},
		out: out,
	}
	return cli, store, out
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	errCheck   func(error) bool
	wantOut    []string
}

func runCases(t *testing.T, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _, out := setup(t)
			err := cli.run(context.Background(), append([]string{"lmsctl"}, tt.args...))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.errCheck != nil:
				if !tt.errCheck(err) {
					t.Fatalf("unexpected err = %v", err)
				}
			case tt.wantErrStr != "":
				if err == nil || !strings.Contains(err.Error(), tt.wantErrStr) {
					t.Fatalf("err = %v, want it to contain %q", err, tt.wantErrStr)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v\n%s", err, out)
				}
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	runCases(t, []cliTest{
		{name: "no command", args: nil, wantErr: errHelp, wantOut: []string{"Usage:"}},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "bad flag", args: []string{"rebuild-rosters", "-nope"}, wantErr: errHelp},
		{name: "sync without students", args: []string{"sync-memberships", "-batch", "A"}, wantErr: errHelp},
	})
}

func Test_commandLine_reconcileBatches(t *testing.T) {
	runCases(t, []cliTest{
		{
			name: "mapping only",
			args: []string{"reconcile-batches", "-source", "file"},
			wantOut: []string{
				"MATCH     fs1 -> A  \"Cohort A\" (name_teacher)",
				"UNMATCHED fs9",
				"TEACHER   legacyT1 -> T1 (email)",
				"2 legacy batches: 1 matched, 1 unmatched",
				"1 teachers linked, 0 videos linked, 1 videos unlinked",
				"[DRY RUN]",
			},
		},
		{
			name:    "apply",
			args:    []string{"reconcile-batches", "-source", "file", "-apply"},
			wantOut: []string{"Applied: 1 users and 0 videos repointed, 1 legacy ids recorded (1 teachers, 0 videos)"},
		},
		{name: "legacy store down", args: []string{"reconcile-batches", "-source", "mongo"}, wantErrStr: "connection refused"},
	})

	cli, store, _ := setup(t)
	must(t, cli.run(context.Background(), []string{"lmsctl", "reconcile-batches", "-apply"}))
	s1, _ := store.GetUser(context.Background(), "s1")
	a, _ := store.GetBatch(context.Background(), "A")
	if s1.BatchID == nil || *s1.BatchID != "A" {
		t.Errorf("s1 batch pointer = %v, want A", s1.BatchID)
	}
	if len(a.Students) != 1 || a.Students[0] != "s1" {
		t.Errorf("roster of A = %v", a.Students)
	}
	teacher, _ := store.GetUser(context.Background(), "T1")
	if teacher.LegacyID == nil || *teacher.LegacyID != "legacyT1" {
		t.Errorf("teacher legacy id = %v", teacher.LegacyID)
	}
}

func Test_commandLine_reconcileBatchesLinksVideos(t *testing.T) {
	cli, store, out := setup(t)
	ctx := context.Background()
	batch := "A"
	must(t, store.CreateVideo(ctx, &model.ClassroomVideo{ID: "v1", Title: "Intro", BatchID: &batch, VideoSource: model.VideoSourceYouTube, ExternalContentID: "yt1"}))

	must(t, cli.run(ctx, []string{"lmsctl", "reconcile-batches", "-apply"}))
	for _, want := range []string{"VIDEO     lv1 -> v1", "(1 teachers, 1 videos)"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out.Reset()
	writes := store.TotalWrites()
	must(t, cli.run(ctx, []string{"lmsctl", "reconcile-batches", "-apply"}))
	if !strings.Contains(out.String(), "0 legacy ids recorded (0 teachers, 0 videos)") || store.TotalWrites() != writes {
		t.Errorf("second apply wrote to the store:\n%s", out)
	}
}

func Test_commandLine_syncMemberships(t *testing.T) {
	runCases(t, []cliTest{
		{
			name:    "assign",
			args:    []string{"sync-memberships", "-batch", "B", "-students", "s1, s2"},
			wantOut: []string{"Batch B now has 2 students"},
		},
		{
			name:     "unknown student",
			args:     []string{"sync-memberships", "-batch", "B", "-students", "s1,ghost"},
			errCheck: services.IsNotFound,
		},
	})
}

func Test_commandLine_dedupeVideos(t *testing.T) {
	cli, store, out := setup(t)
	ctx := context.Background()
	batch := "A"
	for _, id := range []string{"v1", "v2"} {
		must(t, store.CreateVideo(ctx, &model.ClassroomVideo{ID: id, Title: "Intro", BatchID: &batch, VideoSource: model.VideoSourceYouTube, ExternalContentID: "yt1"}))
	}

	// duplicates found in a dry run are not an error
	must(t, cli.run(ctx, []string{"lmsctl", "dedupe-videos", "-dry-run"}))
	if !strings.Contains(out.String(), "[DRY RUN] batch A content_id=\"yt1\" keep v1, unassign v2") {
		t.Errorf("dry run output:\n%s", out)
	}
	if store.Writes("UnassignVideos") != 0 {
		t.Fatal("dry run wrote to the store")
	}

	out.Reset()
	must(t, cli.run(ctx, []string{"lmsctl", "dedupe-videos"}))
	if !strings.Contains(out.String(), "1 unassigned, 0 deleted") {
		t.Errorf("apply output:\n%s", out)
	}

	err := cli.run(ctx, []string{"lmsctl", "dedupe-videos", "-batch", "missing"})
	if !services.IsNotFound(err) {
		t.Errorf("unknown batch err = %v", err)
	}
}

func Test_commandLine_rebuildRosters(t *testing.T) {
	runCases(t, []cliTest{
		{name: "all", args: []string{"rebuild-rosters"}, wantOut: []string{"Checked 2 batches"}},
		{name: "single", args: []string{"rebuild-rosters", "-batch", "A"}, wantOut: []string{"UNCHANGED A (0 students)"}},
		{name: "unknown", args: []string{"rebuild-rosters", "-batch", "nope"}, errCheck: services.IsNotFound},
	})
}
