package cron

import (
	"context"
	"fmt"

	"github.com/sahilchouksey/cohort-lms/services"
	"go.uber.org/zap"
)

// RunRosterSweep rebuilds every roster from student batch pointers.
// Runs hourly to heal partially applied membership changes.
func (m *CronManager) RunRosterSweep() error {
	return m.runJob(JobRosterSweep, func(ctx context.Context) (string, map[string]interface{}, error) {
		sweep, err := m.roster.RebuildAllRosters(ctx)
		if err != nil {
			return "", nil, err
		}
		for _, w := range sweep.Warnings {
			m.log.Warn("roster sweep warning", zap.String("warning", w.String()))
		}
		message := fmt.Sprintf("Checked %d batches, %d rosters rebuilt", sweep.Batches, len(sweep.Changed))
		return message, map[string]interface{}{
			"batches":   sweep.Batches,
			"changed":   len(sweep.Changed),
			"unchanged": sweep.Unchanged,
			"warnings":  len(sweep.Warnings),
		}, nil
	})
}

// RunDedupeAudit looks for duplicate classroom videos. It only reports unless
// the manager was configured to apply resolutions.
func (m *CronManager) RunDedupeAudit() error {
	return m.runJob(JobDedupeAudit, func(ctx context.Context) (string, map[string]interface{}, error) {
		report, err := m.dedupe.DedupeVideos(ctx, services.DedupeOptions{
			DryRun:           !m.opts.DedupeApply,
			DanglingAsOrphan: m.opts.DanglingAsOrphan,
		})
		if err != nil {
			return "", nil, err
		}

		mode := "applied"
		if report.DryRun {
			mode = "dry run"
		}
		message := fmt.Sprintf("Scanned %d videos, %d duplicate groups (%s)", report.Scanned, len(report.Groups), mode)
		return message, map[string]interface{}{
			"dry_run":    report.DryRun,
			"scanned":    report.Scanned,
			"groups":     len(report.Groups),
			"unassigned": len(report.Unassigned),
			"deleted":    len(report.Deleted),
		}, nil
	})
}
