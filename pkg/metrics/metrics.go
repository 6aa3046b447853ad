// Package metrics holds the Prometheus instruments shared by the RPC and WebSocket clients.
// Every method is safe on a nil *Metrics, so instrumentation stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nanorpc"

// Metrics contains all Prometheus metrics of the client.
type Metrics struct {
	// HTTP dispatcher
	RPCCalls    *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	// WebSocket connection
	WSConnects        *prometheus.CounterVec
	WSConnected       prometheus.Gauge
	WSFramesReceived  *prometheus.CounterVec
	WSFramesMalformed prometheus.Counter
	WSFramesSent      prometheus.Counter

	// Subscription registry
	WSSubscriptions prometheus.Gauge
	WSPushDropped   *prometheus.CounterVec
	WSAcks          *prometheus.CounterVec

	// NATS bridge
	BridgePublished *prometheus.CounterVec
}

// New registers the metrics on registry, or on the default registerer when registry is nil.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RPCCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "RPC calls by action and outcome",
		}, []string{"action", "outcome"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of RPC calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		WSConnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_connects_total",
			Help:      "WebSocket dial attempts by result",
		}, []string{"result"}),
		WSConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connected",
			Help:      "1 while the WebSocket connection is up",
		}),
		WSFramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_received_total",
			Help:      "Inbound WebSocket frames by kind",
		}, []string{"kind"}),
		WSFramesMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_malformed_total",
			Help:      "Inbound frames that were not valid JSON objects",
		}),
		WSFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_sent_total",
			Help:      "Outbound WebSocket frames",
		}),
		WSSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscriptions",
			Help:      "Current number of topic subscriptions",
		}),
		WSPushDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_push_dropped_total",
			Help:      "Push messages not delivered to a handler, by reason",
		}, []string{"reason"}),
		WSAcks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_acks_total",
			Help:      "Acknowledgement waits by action and outcome",
		}, []string{"action", "outcome"}),
		BridgePublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_published_total",
			Help:      "Push messages forwarded to NATS by topic and result",
		}, []string{"topic", "result"}),
	}
}

func (m *Metrics) ObserveCall(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(action, outcome).Inc()
	m.RPCDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *Metrics) ConnectAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.WSConnects.WithLabelValues(result).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.WSConnected.Set(1)
	} else {
		m.WSConnected.Set(0)
	}
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.WSFramesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameMalformed() {
	if m == nil {
		return
	}
	m.WSFramesMalformed.Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.WSFramesSent.Inc()
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.WSSubscriptions.Set(float64(n))
}

// PushDropped counts an undelivered push. Reasons: unknown_topic, inactive, queue_full.
func (m *Metrics) PushDropped(reason string) {
	if m == nil {
		return
	}
	m.WSPushDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AckOutcome(action, outcome string) {
	if m == nil {
		return
	}
	m.WSAcks.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) Published(topic string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BridgePublished.WithLabelValues(topic, result).Inc()
}
