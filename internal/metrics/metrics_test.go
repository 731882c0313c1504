package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry(), "test")

	m.FrameReceived("agent_activity")
	m.FrameReceived("agent_activity")
	m.FrameReceived("pong")
	m.DecodeError()
	m.ClassifyError()
	m.CommandSent("ping", nil)
	m.CommandSent("ping", errors.New("boom"))
	m.DialFailed()
	m.ReconnectScheduled()
	m.ReconnectExhausted()
	m.NotificationDropped()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"frames agent_activity", m.framesReceived.WithLabelValues("agent_activity"), 2},
		{"frames pong", m.framesReceived.WithLabelValues("pong"), 1},
		{"decode errors", m.decodeErrors, 1},
		{"classify errors", m.classifyErrors, 1},
		{"commands sent", m.commandsSent.WithLabelValues("ping"), 1},
		{"send errors", m.sendErrors.WithLabelValues("ping"), 1},
		{"dial failures", m.dialFailures, 1},
		{"reconnects", m.reconnectAttempts, 1},
		{"exhausted", m.reconnectExhausted, 1},
		{"notifications dropped", m.notificationsDropped, 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := New(prometheus.NewRegistry(), "")

	m.SetConnectionState(2)
	m.SetPendingRequests(3)
	m.SetHistorySize("agent_activity", 50)

	if got := testutil.ToFloat64(m.connectionState); got != 2 {
		t.Errorf("connection_state = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pendingRequests); got != 3 {
		t.Errorf("pending_requests = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.historySize.WithLabelValues("agent_activity")); got != 50 {
		t.Errorf("history_size = %v, want 50", got)
	}
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.ObserveRequest(OutcomeResolved, 200*time.Millisecond)
	m.ObserveRequest(OutcomeTimeout, 30*time.Second)

	if got := testutil.CollectAndCount(m.requestDuration); got != 2 {
		t.Errorf("request_duration series = %d, want 2", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	m.SetConnectionState(1)
	m.DialFailed()
	m.ReconnectScheduled()
	m.ReconnectExhausted()
	m.FrameReceived("x")
	m.DecodeError()
	m.ClassifyError()
	m.CommandSent("x", nil)
	m.SetPendingRequests(1)
	m.ObserveRequest(OutcomeResolved, time.Second)
	m.SetHistorySize("x", 1)
	m.NotificationDropped()
}
