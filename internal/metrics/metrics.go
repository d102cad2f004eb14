package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xnom_ingest_runs_total",
		Help: "Total ingestion runs",
	})
	IngestErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xnom_ingest_errors_total",
		Help: "Total ingestion errors (batch fetch and per-event)",
	})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xnom_ingest_duration_seconds",
		Help:    "Ingestion duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	NotificationsStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_notifications_stored_total",
		Help: "Notifications stored by kind and priority",
	}, []string{"kind", "priority"})
	PushesSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_pushes_suppressed_total",
		Help: "Notifications stored but not pushed, by reason",
	}, []string{"reason"})
	EngagementActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_engagement_actions_total",
		Help: "Engagement actions recorded by kind and outcome",
	}, []string{"kind", "outcome"})
	LikeAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xnom_like_attempts_total",
		Help: "Individual like attempts including retries",
	})
	EngageTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_engage_ticks_total",
		Help: "Engagement ticks by result",
	}, []string{"result"})
	HourlyBudgetUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xnom_hourly_budget_used",
		Help: "Engagement actions counted in the current hour window",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	JobOverlaps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_job_overlaps_total",
		Help: "Scheduled runs skipped because the previous run was still active",
	}, []string{"job"})
	PushClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xnom_push_clients",
		Help: "Connected push clients",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_command_runs_total",
		Help: "CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xnom_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		IngestRuns, IngestErrors, IngestDuration, NotificationsStored, PushesSuppressed,
		EngagementActions, LikeAttempts, EngageTicks, HourlyBudgetUsed, APIRetries,
		JobOverlaps, PushClients, CommandRuns, CommandErrors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"). Empty addr is a no-op.
func StartServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// ObserveIngestDuration records a run duration
func ObserveIngestDuration(start time.Time) {
	IngestDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncAction counts a recorded engagement action.
func IncAction(kind string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	EngagementActions.WithLabelValues(kind, outcome).Inc()
}

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
