package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medssi/internal/exchange/models"
)

// Metrics holds the Prometheus collectors for the exchange engine.
type Metrics struct {
	OffersCreated      *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	SessionsOpened     *prometheus.CounterVec
	Verifications      *prometheus.CounterVec
	SweepChanges       *prometheus.CounterVec
	HoldersForgotten   prometheus.Counter
	OperationLatency   *prometheus.HistogramVec
	StoreLockWait      prometheus.Histogram
	AuditEmitFailures  prometheus.Counter
	PresentationFields prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		OffersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medssi_offers_created_total",
			Help: "Credential offers created, by primary scope and issuance mode",
		}, []string{"scope", "mode"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medssi_credential_transitions_total",
			Help: "Credential state machine transitions, by action and outcome",
		}, []string{"action", "outcome"}),
		SessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medssi_sessions_opened_total",
			Help: "Verification sessions opened, by scope",
		}, []string{"scope"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medssi_verifications_total",
			Help: "Presentation submissions, by outcome code",
		}, []string{"outcome"}),
		SweepChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medssi_retention_sweep_changes_total",
			Help: "Entities changed by the retention sweep, by kind",
		}, []string{"kind"}),
		HoldersForgotten: factory.NewCounter(prometheus.CounterOpts{
			Name: "medssi_holders_forgotten_total",
			Help: "Holder erasure requests completed",
		}),
		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medssi_operation_latency_seconds",
			Help:    "Latency of engine entry points in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		StoreLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medssi_store_lock_wait_seconds",
			Help:    "Time spent waiting for the store lock",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		AuditEmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "medssi_audit_emit_failures_total",
			Help: "Audit events that could not be emitted",
		}),
		PresentationFields: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medssi_presentation_fields",
			Help:    "Number of fields accepted per verified presentation",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		}),
	}
}

func (m *Metrics) IncrementOffersCreated(scope models.Scope, mode models.IssuanceMode) {
	m.OffersCreated.WithLabelValues(string(scope), string(mode)).Inc()
}

func (m *Metrics) IncrementTransition(action models.CredentialAction, outcome string) {
	m.Transitions.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) IncrementSessionsOpened(scope models.Scope) {
	m.SessionsOpened.WithLabelValues(string(scope)).Inc()
}

func (m *Metrics) IncrementVerification(outcome string) {
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObservePresentationFields(n int) {
	m.PresentationFields.Observe(float64(n))
}

// ObserveSweep records every non-zero count of a sweep.
func (m *Metrics) ObserveSweep(r models.SweepResult) {
	add := func(kind string, n int) {
		if n > 0 {
			m.SweepChanges.WithLabelValues(kind).Add(float64(n))
		}
	}
	add("offers_expired", r.OffersExpired)
	add("credentials_deleted", r.CredentialsDeleted)
	add("credentials_sealed", r.CredentialsSealed)
	add("sessions_purged", r.SessionsPurged)
	add("presentations_purged", r.PresentationsPurged)
	add("results_purged", r.ResultsPurged)
}

func (m *Metrics) IncrementHoldersForgotten() {
	m.HoldersForgotten.Inc()
}

func (m *Metrics) IncrementAuditEmitFailures() {
	m.AuditEmitFailures.Inc()
}

func (m *Metrics) ObserveLatency(operation string, d time.Duration) {
	m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveLockWait is shaped to plug into store.WithLockWaitObserver.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.StoreLockWait.Observe(d.Seconds())
}
