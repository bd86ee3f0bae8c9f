package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ccfolio"

// Metrics holds the connection-fabric collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	connectionsAccepted prometheus.Counter
	acceptErrors        prometheus.Counter
	requestsTotal       *prometheus.CounterVec
	handlerErrors       prometheus.Counter
	protocolViolations  *prometheus.CounterVec
	pushSessionsActive  prometheus.Gauge
	pushRejected        prometheus.Counter
	broadcastsTotal     prometheus.Counter
	deliveriesTotal     prometheus.Counter
	slowConsumers       prometheus.Counter
	framesDropped       prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the listener",
		}),
		acceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Accept failures that did not stop the listener",
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests answered by sessions",
		}, []string{"method", "status"}),
		handlerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Handlers that returned an error",
		}),
		protocolViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Connections closed for protocol violations",
		}, []string{"reason"}),
		pushSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_sessions_active",
			Help:      "Push sessions currently registered with the hub",
		}),
		pushRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_rejected_total",
			Help:      "Upgrades refused by admission control",
		}),
		broadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast calls",
		}),
		deliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Messages queued to peers by broadcast",
		}),
		slowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_disconnects_total",
			Help:      "Push sessions closed because their send queue was full",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rate_limited_total",
			Help:      "Inbound frames discarded by the per-session rate limit",
		}),
	}
}

func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connectionsAccepted.Inc()
	}
}

func (m *Metrics) AcceptError() {
	if m != nil {
		m.acceptErrors.Inc()
	}
}

func (m *Metrics) RequestServed(method string, status int) {
	if m != nil {
		m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
}

func (m *Metrics) HandlerError() {
	if m != nil {
		m.handlerErrors.Inc()
	}
}

func (m *Metrics) ProtocolViolation(reason string) {
	if m != nil {
		m.protocolViolations.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PushOpened() {
	if m != nil {
		m.pushSessionsActive.Inc()
	}
}

func (m *Metrics) PushClosed() {
	if m != nil {
		m.pushSessionsActive.Dec()
	}
}

func (m *Metrics) PushRejected() {
	if m != nil {
		m.pushRejected.Inc()
	}
}

func (m *Metrics) Broadcast(delivered int) {
	if m != nil {
		m.broadcastsTotal.Inc()
		m.deliveriesTotal.Add(float64(delivered))
	}
}

func (m *Metrics) SlowConsumer() {
	if m != nil {
		m.slowConsumers.Inc()
	}
}

func (m *Metrics) FrameRateLimited() {
	if m != nil {
		m.framesDropped.Inc()
	}
}
