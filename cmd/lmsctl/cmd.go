package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sahilchouksey/cohort-lms/app"
	"github.com/sahilchouksey/cohort-lms/repository"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/services/legacy"
	"github.com/sahilchouksey/cohort-lms/utils/ids"
	"go.uber.org/zap"
)

var errHelp = errors.New("help provided")

// legacyOpener opens the legacy store for a source/export override
type legacyOpener func(ctx context.Context, source, exportPath string) (legacy.Reader, func(), error)

type commandLine struct {
	store      repository.Store
	svc        *app.Services
	openLegacy legacyOpener
	out        io.Writer
	log        *zap.Logger
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  reconcile-batches [-source mongo|file|spaces] [-export PATH] [-apply] - map legacy batch ids to local batches")
	fmt.Fprintln(cli.out, "  sync-memberships -batch ID -students ID,ID,...                   - make BATCH the only batch of each student")
	fmt.Fprintln(cli.out, "  dedupe-videos [-dry-run] [-verbose] [-batch ID] [-dangling-as-orphan] - collapse duplicate classroom videos")
	fmt.Fprintln(cli.out, "  rebuild-rosters [-batch ID]                                       - rebuild rosters from student batch pointers")
}

func (cli *commandLine) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "reconcile-batches":
		fs := cli.flagSet("reconcile-batches")
		source := fs.String("source", "", "legacy store: mongo, file or spaces (default LEGACY_SOURCE)")
		export := fs.String("export", "", "path of a JSON export, for -source file")
		apply := fs.Bool("apply", false, "repoint users and videos that still carry legacy batch ids")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.reconcileBatches(ctx, *source, *export, *apply)

	case "sync-memberships":
		fs := cli.flagSet("sync-memberships")
		batch := fs.String("batch", "", "target batch id")
		students := fs.String("students", "", "comma separated student ids")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *batch == "" || *students == "" {
			fs.Usage()
			return errHelp
		}
		return cli.syncMemberships(ctx, *batch, ids.SplitCSV(*students))

	case "dedupe-videos":
		fs := cli.flagSet("dedupe-videos")
		dryRun := fs.Bool("dry-run", false, "report duplicates without changing anything")
		verbose := fs.Bool("verbose", false, "log each duplicate group as it is found")
		batch := fs.String("batch", "", "limit to one batch (plus unassigned videos)")
		dangling := fs.Bool("dangling-as-orphan", false, "treat videos of deleted batches as orphans")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.dedupeVideos(ctx, services.DedupeOptions{
			BatchID:          *batch,
			DryRun:           *dryRun,
			Verbose:          *verbose,
			DanglingAsOrphan: *dangling,
		})

	case "rebuild-rosters":
		fs := cli.flagSet("rebuild-rosters")
		batch := fs.String("batch", "", "rebuild a single batch")
		if err := fs.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.rebuildRosters(ctx, *batch)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) reconcileBatches(ctx context.Context, source, exportPath string, apply bool) error {
	reader, closeReader, err := cli.openLegacy(ctx, source, exportPath)
	if err != nil {
		return fmt.Errorf("open legacy store: %w", err)
	}
	defer closeReader()

	rec := services.NewReconciliationService(reader, cli.store, cli.log)
	result, err := rec.Run(ctx)
	if err != nil {
		return err
	}

	for _, m := range result.Matches {
		fmt.Fprintf(cli.out, "MATCH     %s -> %s  %q (%s)\n", m.LegacyID, m.LocalID, m.Name, m.MatchedBy)
	}
	for _, id := range result.Unmatched {
		fmt.Fprintf(cli.out, "UNMATCHED %s\n", id)
	}
	for _, l := range result.TeacherLinks {
		fmt.Fprintf(cli.out, "TEACHER   %s -> %s (%s)\n", l.LegacyID, l.LocalID, l.MatchedBy)
	}
	for _, l := range result.VideoLinks {
		fmt.Fprintf(cli.out, "VIDEO     %s -> %s\n", l.LegacyID, l.LocalID)
	}
	printWarnings(cli.out, result.Warnings)
	fmt.Fprintf(cli.out, "%d legacy batches: %d matched, %d unmatched\n",
		result.LegacyTotal, len(result.Mapping), len(result.Unmatched))
	fmt.Fprintf(cli.out, "%d teachers linked, %d videos linked, %d videos unlinked\n",
		len(result.TeacherLinks), len(result.VideoLinks), len(result.VideosUnlinked))

	if !apply {
		fmt.Fprintln(cli.out, "[DRY RUN] mapping only, pass -apply to repoint legacy pointers")
		return nil
	}

	applied, err := rec.Apply(ctx, result)
	if err != nil {
		return err
	}
	for _, id := range applied.Skipped {
		fmt.Fprintf(cli.out, "SKIPPED   %s\n", id)
	}
	printWarnings(cli.out, applied.Warnings)
	fmt.Fprintf(cli.out, "Applied: %d users and %d videos repointed, %d legacy ids recorded (%d teachers, %d videos), %d rosters rebuilt\n",
		applied.UsersRepointed, applied.VideosRepointed, applied.LegacyIDsRecorded,
		applied.TeacherIDsRecorded, applied.VideoIDsRecorded, len(applied.Rosters))
	return nil
}

func (cli *commandLine) syncMemberships(ctx context.Context, batchID string, studentIDs []string) error {
	result, err := cli.svc.Membership.AssignStudentsToBatch(ctx, batchID, studentIDs)
	if err != nil {
		return err
	}

	from := make([]string, 0, len(result.RemovedFrom))
	for id := range result.RemovedFrom {
		from = append(from, id)
	}
	sort.Strings(from)
	for _, id := range from {
		fmt.Fprintf(cli.out, "REMOVED   %s from %s\n", strings.Join(result.RemovedFrom[id], ","), id)
	}
	fmt.Fprintf(cli.out, "Batch %s now has %d students (roster changed: %t, pointers updated: %d, courses updated: %d)\n",
		result.BatchID, len(result.Students), result.RosterChanged, result.PointersUpdated, result.CoursesUpdated)
	return nil
}

func (cli *commandLine) dedupeVideos(ctx context.Context, opts services.DedupeOptions) error {
	report, err := cli.svc.Dedupe.DedupeVideos(ctx, opts)
	if err != nil {
		return err
	}

	prefix := ""
	if report.DryRun {
		prefix = "[DRY RUN] "
	}
	for _, g := range report.Groups {
		where := g.Scope
		if g.BatchID != "" {
			where = "batch " + g.BatchID
		}
		fmt.Fprintf(cli.out, "%s%s %s=%q keep %s, %s %s\n",
			prefix, where, g.Key, g.Value, g.CanonicalID, g.Action, strings.Join(g.LoserIDs, ","))
	}
	printWarnings(cli.out, report.Warnings)
	fmt.Fprintf(cli.out, "%sScanned %d videos, %d duplicate groups, %d unassigned, %d deleted\n",
		prefix, report.Scanned, len(report.Groups), len(report.Unassigned), len(report.Deleted))
	return nil
}

func (cli *commandLine) rebuildRosters(ctx context.Context, batchID string) error {
	if batchID != "" {
		result, err := cli.svc.Roster.RebuildRoster(ctx, batchID)
		if err != nil {
			return err
		}
		printRoster(cli.out, *result)
		return nil
	}

	sweep, err := cli.svc.Roster.RebuildAllRosters(ctx)
	if err != nil {
		return err
	}
	for _, r := range sweep.Changed {
		printRoster(cli.out, r)
	}
	printWarnings(cli.out, sweep.Warnings)
	fmt.Fprintf(cli.out, "Checked %d batches: %d rebuilt, %d unchanged\n", sweep.Batches, len(sweep.Changed), sweep.Unchanged)
	return nil
}

func printRoster(w io.Writer, r services.RosterResult) {
	if !r.Changed {
		fmt.Fprintf(w, "UNCHANGED %s (%d students)\n", r.BatchID, len(r.Students))
		return
	}
	fmt.Fprintf(w, "REBUILT   %s (%d students, +%d -%d)\n", r.BatchID, len(r.Students), len(r.Added), len(r.Removed))
}

func printWarnings(w io.Writer, warnings []services.ConsistencyWarning) {
	for _, warn := range warnings {
		fmt.Fprintf(w, "WARN      %s\n", warn.String())
	}
}
