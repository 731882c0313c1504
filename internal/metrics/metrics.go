package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "hubclient"

// Request outcomes.
const (
	OutcomeResolved = "resolved"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeLost     = "connection_lost"
)

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	connectionState    prometheus.Gauge
	dialFailures       prometheus.Counter
	reconnectAttempts  prometheus.Counter
	reconnectExhausted prometheus.Counter

	framesReceived *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	classifyErrors prometheus.Counter
	commandsSent   *prometheus.CounterVec
	sendErrors     *prometheus.CounterVec

	pendingRequests prometheus.Gauge
	requestDuration *prometheus.HistogramVec

	historySize          *prometheus.GaugeVec
	notificationsDropped prometheus.Counter
}

// New registers the collectors on reg under namespace. An empty namespace
// uses DefaultNamespace; a nil reg uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection state (0=idle 1=connecting 2=connected 3=disconnected 4=manually_closed)",
		}),
		dialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dial_failures_total",
			Help:      "Total number of failed dial attempts",
		}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnect attempts",
		}),
		reconnectExhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_exhausted_total",
			Help:      "Number of times the reconnect attempt ceiling was reached",
		}),

		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by tag",
		}, []string{"tag"}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound messages that could not be decoded into a frame",
		}),
		classifyErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classify_errors_total",
			Help:      "Frames whose known fields had the wrong type",
		}),
		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Outbound commands by type",
		}, []string{"type"}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Outbound commands that failed to send, by type",
		}, []string{"type"}),

		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Correlated requests awaiting a response",
		}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from issuing a correlated request to its outcome",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		historySize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Records held per category history",
		}, []string{"category"}),
		notificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the consumer fell behind",
		}),
	}
}

// SetConnectionState records the numeric connection state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// DialFailed counts a failed dial.
func (m *Metrics) DialFailed() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

// ReconnectScheduled counts a scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// ReconnectExhausted counts reaching the attempt ceiling.
func (m *Metrics) ReconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectExhausted.Inc()
}

// FrameReceived counts an inbound frame.
func (m *Metrics) FrameReceived(tag string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(tag).Inc()
}

// DecodeError counts an undecodable message.
func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// ClassifyError counts a frame that failed classification.
func (m *Metrics) ClassifyError() {
	if m == nil {
		return
	}
	m.classifyErrors.Inc()
}

// CommandSent counts an outbound command. err != nil counts a send failure.
func (m *Metrics) CommandSent(cmdType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sendErrors.WithLabelValues(cmdType).Inc()
		return
	}
	m.commandsSent.WithLabelValues(cmdType).Inc()
}

// SetPendingRequests records the pending table size.
func (m *Metrics) SetPendingRequests(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

// ObserveRequest records the outcome of a correlated request.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// SetHistorySize records the size of a category history.
func (m *Metrics) SetHistorySize(category string, n int) {
	if m == nil {
		return
	}
	m.historySize.WithLabelValues(category).Set(float64(n))
}

// NotificationDropped counts a dropped notification.
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}
