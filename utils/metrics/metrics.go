// Package metrics holds the prometheus collectors for consistency work.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cohortlms"

var (
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_runs_total", Help: "Total maintenance job runs",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "job_errors_total", Help: "Total maintenance job errors",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "job_duration_seconds", Help: "Maintenance job duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	MembershipWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "membership_writes_total", Help: "Store writes issued by membership changes",
	}, []string{"kind"})
	RosterRebuilds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "roster_rebuilds_total", Help: "Roster recomputations by outcome",
	}, []string{"outcome"})
	DedupeActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "dedupe_actions_total", Help: "Duplicate video resolutions by action",
	}, []string{"action"})
	ReconcileOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "reconcile_batches_total", Help: "Legacy batches reconciled by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		JobRuns, JobErrors, JobDuration,
		MembershipWrites, RosterRebuilds, DedupeActions, ReconcileOutcomes,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveJob records one job run.
func ObserveJob(job string, started time.Time, err error) {
	JobRuns.WithLabelValues(job).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		JobErrors.WithLabelValues(job).Inc()
	}
}
