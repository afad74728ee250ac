// Package metrics exposes Prometheus instrumentation for sync, jobs and the
// document API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by the sync counters.
const (
	DirectionPush = "push"
	DirectionPull = "pull"

	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeDeleted = "deleted"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeAborted = "aborted"
	OutcomeNoop    = "noop"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

var (
	// SyncRecordsTotal counts records handled per sync direction and outcome.
	SyncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosyncmovies_sync_records_total",
		Help: "Records processed by sync, by direction and outcome",
	}, []string{"direction", "outcome"})

	// SyncRunsTotal counts push and pull runs.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosyncmovies_sync_runs_total",
		Help: "Sync runs by kind and outcome",
	}, []string{"kind", "outcome"})

	SyncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gosyncmovies_sync_run_duration_seconds",
		Help:    "Duration of sync runs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// JobRunsTotal counts job attempts by job name and outcome.
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosyncmovies_job_runs_total",
		Help: "Job attempts by job name and outcome",
	}, []string{"job", "outcome"})

	// RemoteBreakerState is 0 closed, 1 half-open, 2 open.
	RemoteBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gosyncmovies_remote_breaker_state",
		Help: "Circuit breaker state of the remote client (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	// ExceptionsTotal counts errors reported through the observer sink.
	ExceptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gosyncmovies_exceptions_total",
		Help: "Errors recorded by the sync engine",
	})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gosyncmovies_api_requests_total",
		Help: "Document API requests by method, route and status code",
	}, []string{"method", "route", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gosyncmovies_api_request_duration_seconds",
		Help:    "Document API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordPush records the counters of one push run.
func RecordPush(created, updated, deleted, failed int, duration time.Duration, err error) {
	SyncRecordsTotal.WithLabelValues(DirectionPush, OutcomeCreated).Add(float64(created))
	SyncRecordsTotal.WithLabelValues(DirectionPush, OutcomeUpdated).Add(float64(updated))
	SyncRecordsTotal.WithLabelValues(DirectionPush, OutcomeDeleted).Add(float64(deleted))
	SyncRecordsTotal.WithLabelValues(DirectionPush, OutcomeFailed).Add(float64(failed))

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case failed > 0:
		outcome = OutcomeFailed
	}
	SyncRunsTotal.WithLabelValues(DirectionPush, outcome).Inc()
	SyncRunDuration.WithLabelValues(DirectionPush).Observe(duration.Seconds())
}

// RecordPull records the counters of one pull run.
func RecordPull(created, updated, skipped int, aborted bool, duration time.Duration, err error) {
	SyncRecordsTotal.WithLabelValues(DirectionPull, OutcomeCreated).Add(float64(created))
	SyncRecordsTotal.WithLabelValues(DirectionPull, OutcomeUpdated).Add(float64(updated))
	SyncRecordsTotal.WithLabelValues(DirectionPull, OutcomeSkipped).Add(float64(skipped))

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = OutcomeError
	case aborted:
		outcome = OutcomeAborted
	}
	SyncRunsTotal.WithLabelValues(DirectionPull, outcome).Inc()
	SyncRunDuration.WithLabelValues(DirectionPull).Observe(duration.Seconds())
}

// RecordJobRun records one job attempt.
func RecordJobRun(job, outcome string) {
	JobRunsTotal.WithLabelValues(job, outcome).Inc()
}

// SetBreakerState publishes a circuit breaker state.
func SetBreakerState(name string, state float64) {
	RemoteBreakerState.WithLabelValues(name).Set(state)
}

// RecordAPIRequest records a document API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
