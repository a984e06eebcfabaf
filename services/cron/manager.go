package cron

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/cohort-lms/model"
	"github.com/sahilchouksey/cohort-lms/services"
	"github.com/sahilchouksey/cohort-lms/utils/logger"
	"github.com/sahilchouksey/cohort-lms/utils/metrics"
	"github.com/sahilchouksey/cohort-lms/utils/observability"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job names, also used as metric labels
const (
	JobRosterSweep = "roster_sweep"
	JobDedupeAudit = "dedupe_audit"
)

// Options tunes the maintenance jobs
type Options struct {
	DedupeApply      bool // Resolve duplicates instead of only reporting them
	DanglingAsOrphan bool
	JobTimeout       time.Duration
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron   *cron.Cron
	db     *gorm.DB // Job log table; nil disables persisted logs
	roster *services.RosterService
	dedupe *services.VideoDedupeService
	opts   Options
	log    *zap.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, roster *services.RosterService, dedupe *services.VideoDedupeService, opts Options, log *zap.Logger) *CronManager {
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:   c,
		db:     db,
		roster: roster,
		dedupe: dedupe,
		opts:   opts,
		log:    logger.OrNop(log).Named("cron"),
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	m.log.Info("starting cron jobs")

	// Register all jobs
	if err := m.registerJobs(); err != nil {
		return err
	}

	// Start the cron scheduler
	m.cron.Start()

	m.log.Info("cron jobs started", zap.Int("jobs", len(m.cron.Entries())))
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	m.log.Info("stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// 1. Every hour: rebuild every batch roster from student pointers
	if _, err := m.cron.AddFunc("0 0 * * * *", func() { _ = m.RunRosterSweep() }); err != nil {
		return err
	}

	// 2. Daily at 3 AM: duplicate video audit
	if _, err := m.cron.AddFunc("0 0 3 * * *", func() { _ = m.RunDedupeAudit() }); err != nil {
		return err
	}

	m.log.Info("all cron jobs registered")
	return nil
}

// runJob wraps a job with its timeout, job log row, metrics and error reporting.
func (m *CronManager) runJob(jobName string, fn func(ctx context.Context) (string, map[string]interface{}, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.JobTimeout)
	defer cancel()

	started := time.Now()
	logID := m.logJobStart(jobName, started)

	message, meta, err := fn(ctx)
	metrics.ObserveJob(jobName, started, err)
	if err != nil {
		m.logJobError(logID, jobName, started, err)
		observability.CaptureErr(jobName, err)
		return err
	}
	m.logJobComplete(logID, jobName, started, message, meta)
	return nil
}

// logJobStart logs the start of a cron job and returns its log row id
func (m *CronManager) logJobStart(jobName string, started time.Time) uint {
	m.log.Info("job started", zap.String("job", jobName))
	if m.db == nil {
		return 0
	}

	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronStatusRunning,
		StartedAt: started,
		Metadata:  datatypes.JSON("{}"),
	}
	if err := m.db.Create(&cronLog).Error; err != nil {
		m.log.Warn("failed to persist job log", zap.String("job", jobName), zap.Error(err))
		return 0
	}
	return cronLog.ID
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(logID uint, jobName string, started time.Time, message string, meta map[string]interface{}) {
	m.log.Info("job completed", zap.String("job", jobName), zap.String("message", message), zap.Duration("took", time.Since(started)))
	if m.db == nil || logID == 0 {
		return
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}
	now := time.Now()
	m.db.Model(&model.CronJobLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"status":       model.CronStatusCompleted,
			"completed_at": now,
			"duration":     now.Sub(started).Milliseconds(),
			"message":      message,
			"metadata":     datatypes.JSON(metaJSON),
		})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(logID uint, jobName string, started time.Time, err error) {
	m.log.Error("job failed", zap.String("job", jobName), zap.Error(err))
	if m.db == nil || logID == 0 {
		return
	}

	now := time.Now()
	m.db.Model(&model.CronJobLog{}).
		Where("id = ?", logID).
		Updates(map[string]interface{}{
			"status":       model.CronStatusFailed,
			"completed_at": now,
			"duration":     now.Sub(started).Milliseconds(),
			"error_msg":    err.Error(),
		})
}
