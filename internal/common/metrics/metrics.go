package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// CandidatesScored counts scored trainers by the strategy that produced the score.
	CandidatesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_candidates_scored_total",
			Help: "Trainers scored during ranking passes, by strategy",
		},
		[]string{"strategy"},
	)

	CandidatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_candidates_dropped_total",
			Help: "Trainers excluded from a ranking pass because scoring failed",
		},
	)

	PrimaryScorerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_primary_scorer_fallbacks_total",
			Help: "Times the heuristic replaced a failed intelligence scorer call",
		},
	)

	MatchUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_result_upserts_total",
			Help: "Match result upserts by outcome (created, updated, failed)",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_notifications_total",
			Help: "Top-match notifications by outcome (sent, failed, skipped)",
		},
		[]string{"outcome"},
	)

	IntelligenceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_intelligence_cache_lookups_total",
			Help: "Intelligence scorer cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
)
