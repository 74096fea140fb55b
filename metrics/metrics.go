// Package metrics exports Prometheus counters and gauges for each
// pipeline stage, served via promhttp.Handler() registered on the
// process's metrics listener, using direct client_golang
// instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crowdtask"

var (
	SubmissionsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "submissions_processed_total",
			Help: "Submissions that have finished the QC pipeline, by outcome.",
		}, []string{"outcome"})

	FraudFlags = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "fraud_flags_total",
			Help: "Submissions the Fraud Detector flagged, by reason.",
		}, []string{"reason"})

	QCDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "qc_decisions_total",
			Help: "QC Pipeline terminal decisions, by decision path (gold_standard, consensus, ai_adjudication, fraud).",
		}, []string{"path", "decision"})

	PaymentsSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "payments_settled_total",
			Help: "Task payments settled by the Payment Engine, by settlement kind (full, partial).",
		}, []string{"kind"})

	PaymentAmountSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "payment_amount_settled_dollars_total",
			Help: "Total dollar amount settled to workers by the Payment Engine.",
		}, []string{"kind"})

	DisputesOpened = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "disputes_opened_total",
			Help: "Disputes opened by workers against a rejected submission.",
		})

	DisputesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "disputes_resolved_total",
			Help: "Disputes resolved, by resolution (approve, partial, reject, auto_approved).",
		}, []string{"resolution"})

	AssignmentsExpired = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "assignments_expired_total",
			Help: "Assignments reclaimed by the expire-assignments scheduler loop.",
		})

	TasksPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name: "tasks_published_total",
			Help: "Scheduled tasks flipped to Published by the publish-scheduled scheduler loop.",
		})

	SchedulerTickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name: "scheduler_tick_duration_seconds",
			Help: "Wall-clock duration of one scheduler loop tick, by job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"})
)

func init() {
	prometheus.MustRegister(
		SubmissionsProcessed,
		FraudFlags,
		QCDecisions,
		PaymentsSettled,
		PaymentAmountSettled,
		DisputesOpened,
		DisputesResolved,
		AssignmentsExpired,
		TasksPublished,
		SchedulerTickDuration,
	)
}

// Handler returns the promhttp handler this module's metrics are
// registered against.
func Handler() http.Handler {
	return promhttp.Handler()
}
