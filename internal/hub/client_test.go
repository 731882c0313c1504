package hub_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/hubclient/internal/clock"
	"github.com/rickgao/hubclient/internal/connection"
	"github.com/rickgao/hubclient/internal/connection/conntest"
	"github.com/rickgao/hubclient/internal/correlation"
	"github.com/rickgao/hubclient/internal/hub"
	"github.com/rickgao/hubclient/internal/metrics"
	"github.com/rickgao/hubclient/internal/notify"
)

var epoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	client  *hub.Client
	factory *conntest.Factory
	clock   *clock.Fake
	events  *notify.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		factory: conntest.NewFactory(),
		clock:   clock.NewFake(epoch),
		events:  &notify.Recorder{},
	}
	n := 0
	h.client = hub.New(hub.DefaultConfig("ws://hub.test/ws"),
		hub.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		hub.WithClock(h.clock),
		hub.WithClientFactory(h.factory.New),
		hub.WithMetrics(metrics.New(prometheus.NewRegistry(), "")),
		hub.WithNotifier(h.events),
		hub.WithIDGenerator(func() (string, error) {
			n++
			return fmt.Sprintf("req-%d", n), nil
		}),
	)
	t.Cleanup(h.client.Close)
	return h
}

func (h *harness) connect(t *testing.T) *conntest.Transport {
	t.Helper()
	before := len(h.events.Events(notify.EventConnected))
	h.client.Connect()
	waitFor(t, "connected", func() bool {
		return len(h.events.Events(notify.EventConnected)) > before
	})
	return h.factory.Last()
}

// settle fires the post-open settle timer so the default subscription goes out.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	h.clock.Advance(time.Second)
}

func (h *harness) waitRouted(t *testing.T, n int64) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%d frames routed", n), func() bool {
		return h.client.Stats().Router.MessagesReceived >= n
	})
}

func TestClient_AutoSubscribeAfterOpen(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	if got := tr.SentOfType("subscribe"); len(got) != 0 {
		t.Fatalf("subscribe sent before settle: %v", got)
	}

	h.settle(t)

	subs := tr.SentOfType("subscribe")
	if len(subs) != 1 {
		t.Fatalf("subscribe commands = %d, want 1", len(subs))
	}
	events, _ := subs[0]["events"].([]any)
	want := []any{"agent_activity", "workflow_updates", "system_status"}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}

	// Nothing is confirmed until the hub says so.
	if got := h.client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() before confirmation = %v", got)
	}

	tr.Deliver(`{"type":"subscription_confirmed","events":["agent_activity","workflow_updates","system_status"]}`)
	h.waitRouted(t, 1)

	got := h.client.Subscriptions()
	wantTopics := []string{"agent_activity", "system_status", "workflow_updates"}
	if !slices.Equal(got, wantTopics) {
		t.Errorf("Subscriptions() = %v, want %v", got, wantTopics)
	}
}

func TestClient_ConnectIdempotent(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.client.Connect()
	h.client.Connect()

	if h.factory.Count() != 1 {
		t.Errorf("transports built = %d, want 1", h.factory.Count())
	}
	if n := len(h.events.Events(notify.EventConnected)); n != 1 {
		t.Errorf("connected notifications = %d, want 1", n)
	}
}

func TestClient_FiftyOneActivities(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	for i := 1; i <= 51; i++ {
		tr.Deliver(fmt.Sprintf(`{"type":"agent_activity","agent_name":"intake","activity":"step %d"}`, i))
	}
	h.waitRouted(t, 51)

	got := h.client.AgentActivities()
	if len(got) != 50 {
		t.Fatalf("len(AgentActivities()) = %d, want 50", len(got))
	}
	if got[0].Activity != "step 51" {
		t.Errorf("newest = %q, want %q", got[0].Activity, "step 51")
	}
	if got[49].Activity != "step 2" {
		t.Errorf("oldest = %q, want %q", got[49].Activity, "step 2")
	}
}

func TestClient_StartWorkflow(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	id, err := h.client.StartWorkflow(map[string]any{"claim_id": "C-9", "amount": 1200})
	if err != nil {
		t.Fatalf("StartWorkflow failed: %v", err)
	}
	if id != "req-1" {
		t.Errorf("id = %q, want %q", id, "req-1")
	}

	sent := tr.SentOfType("workflow_start")
	if len(sent) != 1 {
		t.Fatalf("workflow_start commands = %d, want 1", len(sent))
	}
	if sent[0]["request_id"] != id {
		t.Errorf("request_id = %v, want %q", sent[0]["request_id"], id)
	}
	claim, _ := sent[0]["claim_data"].(map[string]any)
	if claim["claim_id"] != "C-9" {
		t.Errorf("claim_data = %v", sent[0]["claim_data"])
	}
	if h.client.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want 0 for fire-and-forget", h.client.PendingRequests())
	}

	tr.Deliver(`{"type":"workflow_update","claim_id":"C-9","stage":"intake","status":"in_progress"}`)
	tr.Deliver(`{"type":"workflow_update","claim_id":"C-9","stage":"payout","status":"completed"}`)
	h.waitRouted(t, 2)

	updates := h.client.WorkflowUpdates()
	if len(updates) != 2 {
		t.Fatalf("len(WorkflowUpdates()) = %d, want 2", len(updates))
	}
	if updates[0].Stage != "payout" || updates[1].Stage != "intake" {
		t.Errorf("stages = %q, %q", updates[0].Stage, updates[1].Stage)
	}
}

func TestClient_StartWorkflowNotConnected(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.StartWorkflow(map[string]any{"claim_id": "C-1"})
	if !errors.Is(err, connection.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
	if n := len(h.events.Events(notify.EventSendFailed)); n != 1 {
		t.Errorf("send_failed notifications = %d, want 1", n)
	}
}

func TestClient_ProcessWithAgentResolves(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	f := h.client.ProcessWithAgent("intake", "summarize claim C-1")
	if h.client.PendingRequests() != 1 {
		t.Fatalf("PendingRequests() = %d, want 1", h.client.PendingRequests())
	}

	sent := tr.SentOfType("agent_process")
	if len(sent) != 1 {
		t.Fatalf("agent_process commands = %d, want 1", len(sent))
	}
	if sent[0]["agent_type"] != "intake" || sent[0]["message"] != "summarize claim C-1" {
		t.Errorf("command = %v", sent[0])
	}
	if sent[0]["request_id"] != f.ID() {
		t.Errorf("request_id = %v, want %q", sent[0]["request_id"], f.ID())
	}

	tr.Deliver(fmt.Sprintf(`{"type":"agent_response","request_id":%q,"response":"looks fine"}`, f.ID()))
	tr.Deliver(fmt.Sprintf(`{"type":"agent_response","request_id":%q,"response":"duplicate"}`, f.ID()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := f.Wait(ctx)
	if err != nil || got != "looks fine" {
		t.Errorf("Wait() = %q, %v, want %q, nil", got, err, "looks fine")
	}

	h.waitRouted(t, 2)
	if got, _ := f.Result(); got != "looks fine" {
		t.Errorf("Result() after duplicate = %q", got)
	}
	if h.client.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want 0", h.client.PendingRequests())
	}
}

func TestClient_ProcessWithAgentError(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	f := h.client.ProcessWithAgent("fraud", "score")
	tr.Deliver(fmt.Sprintf(`{"type":"agent_error","request_id":%q,"agent_type":"fraud","error":"model offline"}`, f.ID()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Wait(ctx)

	var agentErr *correlation.AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("error = %v, want *correlation.AgentError", err)
	}
	if agentErr.Message != "model offline" {
		t.Errorf("Message = %q", agentErr.Message)
	}
}

func TestClient_ProcessWithAgentTimeout(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	f := h.client.ProcessWithAgent("intake", "hello")

	h.clock.Advance(29 * time.Second)
	if _, err := f.Result(); !errors.Is(err, correlation.ErrPending) {
		t.Fatalf("Result() before deadline = %v, want ErrPending", err)
	}

	h.clock.Advance(time.Second)
	if _, err := f.Result(); !errors.Is(err, correlation.ErrRequestTimeout) {
		t.Errorf("Result() error = %v, want ErrRequestTimeout", err)
	}
	if h.client.PendingRequests() != 0 {
		t.Errorf("PendingRequests() = %d, want 0", h.client.PendingRequests())
	}
	if n := len(h.events.Events(notify.EventRequestTimeout)); n != 1 {
		t.Errorf("request_timeout notifications = %d, want 1", n)
	}
}

func TestClient_ProcessWithAgentNotConnected(t *testing.T) {
	h := newHarness(t)

	f := h.client.ProcessWithAgent("intake", "hello")

	select {
	case <-f.Done():
	default:
		t.Fatal("future not settled")
	}
	if _, err := f.Result(); !errors.Is(err, connection.ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
	if h.factory.Count() != 0 {
		t.Errorf("transports built = %d, want 0", h.factory.Count())
	}
	notes := h.events.Events(notify.EventNotConnected)
	if len(notes) != 1 || notes[0].Severity != notify.SeverityWarning {
		t.Errorf("not_connected notifications = %+v", notes)
	}
}

func TestClient_CloseRejectsPending(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	f := h.client.ProcessWithAgent("intake", "hello")
	tr.Fail(errors.New("reset by peer"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, correlation.ErrConnectionLost) {
		t.Errorf("error = %v, want ErrConnectionLost", err)
	}

	waitFor(t, "disconnected notification", func() bool {
		return len(h.events.Events(notify.EventDisconnected)) == 1
	})
}

func TestClient_ResubscribeAfterReconnect(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)
	h.settle(t)

	if err := h.client.Subscribe("audit"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	tr.Deliver(`{"type":"subscription_confirmed","events":["agent_activity","workflow_updates","system_status","audit"]}`)
	h.waitRouted(t, 1)
	if !slices.Contains(h.client.Subscriptions(), "audit") {
		t.Fatalf("Subscriptions() = %v, want audit", h.client.Subscriptions())
	}

	tr.Fail(errors.New("reset by peer"))
	waitFor(t, "disconnected", func() bool {
		return len(h.events.Events(notify.EventDisconnected)) == 1
	})

	if got := h.client.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() after close = %v, want none", got)
	}

	h.clock.Advance(3 * time.Second)
	waitFor(t, "reconnected", func() bool {
		return len(h.events.Events(notify.EventConnected)) == 2
	})
	h.settle(t)

	next := h.factory.Last()
	subs := next.SentOfType("subscribe")
	if len(subs) != 1 {
		t.Fatalf("subscribe commands on new transport = %d, want 1", len(subs))
	}
	events, _ := subs[0]["events"].([]any)
	if !slices.Contains(events, any("audit")) || !slices.Contains(events, any("agent_activity")) {
		t.Errorf("resubscribe events = %v", events)
	}
}

func TestClient_ReconnectExhausted(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	h.factory.FailDials(5, nil)
	tr.Fail(errors.New("server went away"))
	waitFor(t, "disconnected", func() bool { return h.client.State() == connection.StateDisconnected })

	for i := 0; i < 5; i++ {
		h.clock.Advance(3 * time.Second)
	}
	waitFor(t, "exhausted", func() bool {
		return len(h.events.Events(notify.EventReconnectExhausted)) > 0
	})

	if n := len(h.events.Events(notify.EventReconnecting)); n != 5 {
		t.Errorf("reconnecting notifications = %d, want 5", n)
	}
	exhausted := h.events.Events(notify.EventReconnectExhausted)
	if len(exhausted) != 1 {
		t.Fatalf("reconnect_exhausted notifications = %d, want 1", len(exhausted))
	}
	if exhausted[0].Severity != notify.SeverityError {
		t.Errorf("Severity = %v, want error", exhausted[0].Severity)
	}

	h.clock.Advance(time.Minute)
	if h.factory.Count() != 6 {
		t.Errorf("transports built = %d, want 6", h.factory.Count())
	}
	if h.client.State() != connection.StateDisconnected {
		t.Errorf("State() = %v, want disconnected", h.client.State())
	}
}

func TestClient_DisconnectNeverReconnects(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	h.client.Disconnect()
	h.clock.Advance(time.Hour)

	if h.client.State() != connection.StateManuallyClosed {
		t.Errorf("State() = %v, want manually_closed", h.client.State())
	}
	if h.factory.Count() != 1 {
		t.Errorf("transports built = %d, want 1", h.factory.Count())
	}
	if n := len(h.events.Events(notify.EventReconnecting)); n != 0 {
		t.Errorf("reconnecting notifications = %d, want 0", n)
	}
}

func TestClient_DisconnectBeforeConnect(t *testing.T) {
	h := newHarness(t)

	h.client.Disconnect()

	if got := h.events.Events(notify.EventDisconnected); len(got) != 0 {
		t.Errorf("disconnected notifications = %v, want none", got)
	}
	if h.client.State() != connection.StateIdle {
		t.Errorf("State() = %v, want idle", h.client.State())
	}
}

func TestClient_DecodeError(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	tr.Deliver(`not json`)
	tr.Deliver(`{"type":"pong"}`)
	h.waitRouted(t, 1)

	notes := h.events.Events(notify.EventDecodeError)
	if len(notes) != 1 || notes[0].Severity != notify.SeverityWarning {
		t.Errorf("decode_error notifications = %+v", notes)
	}
	if h.client.State() != connection.StateConnected {
		t.Errorf("State() = %v, want connected", h.client.State())
	}
}

func TestClient_WaitConnected(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := h.client.WaitConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitConnected() before Connect = %v, want DeadlineExceeded", err)
	}

	h.client.Connect()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := h.client.WaitConnected(ctx2); err != nil {
		t.Errorf("WaitConnected() = %v", err)
	}
}

func TestClient_StatsAndPing(t *testing.T) {
	h := newHarness(t)
	tr := h.connect(t)

	if err := h.client.RequestStats(); err != nil {
		t.Fatalf("RequestStats failed: %v", err)
	}
	if err := h.client.Ping(); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if len(tr.SentOfType("get_stats")) != 1 || len(tr.SentOfType("ping")) != 1 {
		t.Errorf("sent = %v", tr.SentCommands())
	}

	tr.Deliver(`{"type":"stats","data":{"active_connections":4}}`)
	h.waitRouted(t, 1)

	stats, ok := h.client.ConnectionStats()
	if !ok || stats.Fields["active_connections"] != float64(4) {
		t.Errorf("ConnectionStats() = %+v, %v", stats, ok)
	}
	if !stats.ReceivedAt.Equal(epoch) {
		t.Errorf("ReceivedAt = %v, want %v", stats.ReceivedAt, epoch)
	}
}

func TestClient_StatsListsRequestsAndDesiredTopics(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	if err := h.client.Subscribe("audit"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	h.client.ProcessWithAgent("intake", "hello")

	stats := h.client.Stats()
	if len(stats.Requests) != 1 || stats.Requests[0].ID != "req-1" {
		t.Fatalf("Requests = %+v, want [req-1]", stats.Requests)
	}
	if want := epoch.Add(30 * time.Second); !stats.Requests[0].Deadline.Equal(want) {
		t.Errorf("Deadline = %v, want %v", stats.Requests[0].Deadline, want)
	}
	if !slices.Equal(stats.DesiredTopics, []string{"audit"}) {
		t.Errorf("DesiredTopics = %v, want [audit]", stats.DesiredTopics)
	}
	if len(stats.Subscriptions) != 0 {
		t.Errorf("Subscriptions = %v, want none before confirmation", stats.Subscriptions)
	}
}

func TestClient_NotificationsChannel(t *testing.T) {
	h := newHarness(t)
	h.connect(t)

	select {
	case n := <-h.client.Notifications():
		if n.Event != notify.EventConnected {
			t.Errorf("first notification = %q, want %q", n.Event, notify.EventConnected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}
