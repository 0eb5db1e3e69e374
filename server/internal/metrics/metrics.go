package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "datastream"

// Kind labels an outbound message.
type Kind string

const (
	KindWelcome   Kind = "welcome"
	KindEcho      Kind = "echo"
	KindSample    Kind = "sample"
	KindBroadcast Kind = "broadcast"
)

// Kinds lists every message kind.
var Kinds = []Kind{KindWelcome, KindEcho, KindSample, KindBroadcast}

// Metric family names.
const (
	SessionsOpen     = namespace + "_sessions_open"
	SessionsTotal    = namespace + "_sessions_total"
	MessagesSent     = namespace + "_messages_sent_total"
	SendFailures     = namespace + "_send_failures_total"
	MessagesReceived = namespace + "_messages_received_total"
	TransportErrors  = namespace + "_transport_errors_total"
)

// Registry holds the data stream collectors and the Prometheus registry they
// are registered on.
type Registry struct {
	reg *prometheus.Registry

	sessionsOpen    prometheus.Gauge
	sessionsTotal   prometheus.Counter
	received        prometheus.Counter
	transportErrors prometheus.Counter
	sent            *prometheus.CounterVec
	failures        *prometheus.CounterVec
}

// New creates a Registry with every collector registered and at zero.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions currently registered.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions registered since start.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound text messages.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Connections closed after a transport error.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages delivered, by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound messages dropped, by kind.",
		}, []string{"kind"}),
	}

	// Touch every kind so each series is exported from the first scrape.
	for _, k := range Kinds {
		r.sent.WithLabelValues(string(k))
		r.failures.WithLabelValues(string(k))
	}

	r.reg.MustRegister(
		r.sessionsOpen, r.sessionsTotal, r.received, r.transportErrors,
		r.sent, r.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// SessionOpened records a newly registered session.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.sessionsOpen.Inc()
	r.sessionsTotal.Inc()
}

// SessionClosed records a session leaving the registry.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.sessionsOpen.Dec()
}

// Sent records a delivered message of the given kind.
func (r *Registry) Sent(k Kind) {
	if r == nil {
		return
	}
	r.sent.WithLabelValues(string(k)).Inc()
}

// SendFailed records a dropped message of the given kind.
func (r *Registry) SendFailed(k Kind) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(string(k)).Inc()
}

// Received records an inbound message.
func (r *Registry) Received() {
	if r == nil {
		return
	}
	r.received.Inc()
}

// TransportError records a read-side transport failure.
func (r *Registry) TransportError() {
	if r == nil {
		return
	}
	r.transportErrors.Inc()
}

// OpenSessions returns the current value of the open sessions gauge.
func (r *Registry) OpenSessions() int64 {
	if r == nil {
		return 0
	}
	var m dto.Metric
	if err := r.sessionsOpen.Write(&m); err != nil {
		return 0
	}
	return int64(m.GetGauge().GetValue())
}

// Gather returns every registered metric family, sorted by name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// Handler serves the registry at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
