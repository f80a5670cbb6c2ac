package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the protocol-level Prometheus metrics. Every helper is safe
// on a nil receiver so services can run without metrics in tests.
type Metrics struct {
	VerificationsRecorded prometheus.Counter
	VerificationCache     *prometheus.CounterVec
	RelaysSent            prometheus.Counter
	MessagesReceived      *prometheus.CounterVec
	RelayAwaitAttempts    prometheus.Histogram
	TrustedSenderChanges  *prometheus.CounterVec
	BatchesSent           *prometheus.CounterVec
	BatchRecipients       prometheus.Histogram
	AirdropsCreated       *prometheus.CounterVec
	AirdropsCancelled     prometheus.Counter
	Claims                *prometheus.CounterVec
	OperationLatency      *prometheus.HistogramVec
}

// New registers on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VerificationsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "proofdrop_verifications_recorded_total",
			Help: "Verification hooks accepted by the local registry",
		}),
		VerificationCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_verification_cache_total",
			Help: "Verification cache lookups by result (hit, miss, bypass, error)",
		}, []string{"result"}),
		RelaysSent: f.NewCounter(prometheus.CounterOpts{
			Name: "proofdrop_relays_sent_total",
			Help: "Verifications dispatched to a remote domain",
		}),
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_messages_received_total",
			Help: "Inbound relay messages by outcome",
		}, []string{"outcome"}),
		RelayAwaitAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofdrop_relay_await_attempts",
			Help:    "Polls needed before a relayed verification was observed",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 30},
		}),
		TrustedSenderChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_trusted_sender_changes_total",
			Help: "Trusted sender set mutations by kind",
		}, []string{"kind"}),
		BatchesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_multisend_batches_total",
			Help: "MultiSend batches by asset kind (native, token)",
		}, []string{"kind"}),
		BatchRecipients: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "proofdrop_multisend_recipients",
			Help:    "Recipients per MultiSend batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 150, 200},
		}),
		AirdropsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_airdrops_created_total",
			Help: "Airdrops created by asset kind",
		}, []string{"kind"}),
		AirdropsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "proofdrop_airdrops_cancelled_total",
			Help: "Airdrops cancelled by their creator",
		}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "proofdrop_airdrop_claims_total",
			Help: "Airdrop claim attempts by outcome",
		}, []string{"outcome"}),
		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proofdrop_operation_latency_seconds",
			Help:    "Latency of state-mutating operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncVerificationsRecorded() {
	if m == nil {
		return
	}
	m.VerificationsRecorded.Inc()
}

func (m *Metrics) IncVerificationCache(result string) {
	if m == nil {
		return
	}
	m.VerificationCache.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRelaysSent() {
	if m == nil {
		return
	}
	m.RelaysSent.Inc()
}

// IncMessagesReceived labels by outcome: applied, duplicate or a rejection code.
func (m *Metrics) IncMessagesReceived(outcome string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRelayAwaitAttempts(n int) {
	if m == nil {
		return
	}
	m.RelayAwaitAttempts.Observe(float64(n))
}

func (m *Metrics) IncTrustedSenderChange(kind string) {
	if m == nil {
		return
	}
	m.TrustedSenderChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveBatch(kind string, recipients int) {
	if m == nil {
		return
	}
	m.BatchesSent.WithLabelValues(kind).Inc()
	m.BatchRecipients.Observe(float64(recipients))
}

func (m *Metrics) IncAirdropsCreated(kind string) {
	if m == nil {
		return
	}
	m.AirdropsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncAirdropsCancelled() {
	if m == nil {
		return
	}
	m.AirdropsCancelled.Inc()
}

func (m *Metrics) IncClaims(outcome string) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOperationLatency(operation string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(operation).Observe(durationSeconds)
}
