// Package metrics holds the Prometheus collectors for the relay.
package metrics

import (
	"github.com/breaktools/meffec/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meffec"

// Eviction reasons.
const (
	ReasonClosed       = "closed"
	ReasonWriteFailed  = "write_failed"
	ReasonHeartbeat    = "heartbeat"
	ReasonSendFailed   = "send_failed"
	ReasonSlowConsumer = "slow_consumer"
)

type Metrics struct {
	sessionsActive      prometheus.Gauge
	sessionsByRole      *prometheus.GaugeVec
	framesReceived      *prometheus.CounterVec
	framesMalformed     prometheus.Counter
	sessionsEvicted     *prometheus.CounterVec
	handshakesRejected  prometheus.Counter
	catalogReplacements prometheus.Counter
}

// New registers the relay collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live relay sessions",
		}),
		sessionsByRole: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_by_role",
			Help:      "Live relay sessions by authenticated role",
		}, []string{"role"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from sessions, by decoded kind",
		}, []string{"kind"}),
		framesMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_malformed_total",
			Help:      "Frames dropped because they could not be decoded",
		}),
		sessionsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed from the registry, by reason",
		}, []string{"reason"}),
		handshakesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_rejected_total",
			Help:      "Connections refused by the token gate",
		}),
		catalogReplacements: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_replacements_total",
			Help:      "Times the effect catalog was replaced",
		}),
	}
}

// ObserveSessions sets the session gauges from a per-role tally.
func (m *Metrics) ObserveSessions(counts map[protocol.Role]int) {
	if m == nil {
		return
	}
	total := 0
	for role, n := range counts {
		m.sessionsByRole.WithLabelValues(string(role)).Set(float64(n))
		total += n
	}
	m.sessionsActive.Set(float64(total))
}

func (m *Metrics) FrameReceived(kind protocol.Kind) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) FrameMalformed() {
	if m == nil {
		return
	}
	m.framesMalformed.Inc()
}

func (m *Metrics) SessionEvicted(reason string) {
	if m == nil {
		return
	}
	m.sessionsEvicted.WithLabelValues(reason).Inc()
}

func (m *Metrics) HandshakeRejected() {
	if m == nil {
		return
	}
	m.handshakesRejected.Inc()
}

func (m *Metrics) CatalogReplaced() {
	if m == nil {
		return
	}
	m.catalogReplacements.Inc()
}
