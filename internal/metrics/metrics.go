package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Approval outcome labels.
const (
	ApprovalSuccess  = "success"
	ApprovalFailure  = "failure"
	ApprovalConflict = "conflict"
	ApprovalRefused  = "refused"
)

// Metrics tracks lifecycle transitions, approval outcomes and correction-code
// verification. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	ApprovalOutcomes    *prometheus.CounterVec
	ApprovalDuration    prometheus.Histogram
	ArtifactFailures    *prometheus.CounterVec
	CodeVerifications   *prometheus.CounterVec
	Conflicts           prometheus.Counter
	SecurityViolations  prometheus.Counter
	RequestsByStatus    *prometheus.GaugeVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_transitions_total",
			Help: "Committed request transitions",
		}, []string{"transition"}),
		ApprovalOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_approvals_total",
			Help: "Approval attempts by outcome (success, failure, conflict, refused)",
		}, []string{"outcome"}),
		ApprovalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "membership_approval_duration_seconds",
			Help:    "Duration of the approval provisioning and publishing phases",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ArtifactFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_artifact_failures_total",
			Help: "Best-effort approval steps that failed",
		}, []string{"step"}),
		CodeVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "membership_code_verifications_total",
			Help: "Correction code verifications by result",
		}, []string{"result"}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "membership_write_conflicts_total",
			Help: "Optimistic writes rejected because the request changed",
		}),
		SecurityViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "membership_security_violations_total",
			Help: "Writes aborted because they would persist a placeholder identity",
		}),
		RequestsByStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "membership_requests",
			Help: "Stored requests per status, refreshed by the backlog report",
		}, []string{"status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "membership_http_request_duration_seconds",
			Help:    "HTTP handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) IncTransition(transition string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) IncApproval(outcome string) {
	if m == nil {
		return
	}
	m.ApprovalOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveApproval records the duration of an approval.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveApproval(start time.Time) {
	if m == nil {
		return
	}
	m.ApprovalDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncArtifactFailure(step string) {
	if m == nil {
		return
	}
	m.ArtifactFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) IncCodeVerification(result string) {
	if m == nil {
		return
	}
	m.CodeVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) IncSecurityViolation() {
	if m == nil {
		return
	}
	m.SecurityViolations.Inc()
}

func (m *Metrics) SetRequestsByStatus(status string, n int) {
	if m == nil {
		return
	}
	m.RequestsByStatus.WithLabelValues(status).Set(float64(n))
}

func (m *Metrics) ObserveHTTP(route, code string, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(route, code).Observe(time.Since(start).Seconds())
}
