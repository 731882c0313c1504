package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/hubclient/internal/clock"
	"github.com/rickgao/hubclient/internal/connection"
	"github.com/rickgao/hubclient/internal/correlation"
	"github.com/rickgao/hubclient/internal/metrics"
	"github.com/rickgao/hubclient/internal/notify"
	"github.com/rickgao/hubclient/internal/protocol"
	"github.com/rickgao/hubclient/internal/router"
	"github.com/rickgao/hubclient/internal/subscription"
)

// Client is the event hub client. It owns one Connection Manager and wires
// its output into the subscription registry, the correlation table and the
// event router.
type Client struct {
	cfg     Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics

	manager  *connection.Manager
	registry *subscription.Registry
	table    *correlation.Table
	router   *router.Router
	notes    *notify.Channel
	notifier notify.Notifier

	mu        sync.Mutex
	connected chan struct{} // closed while Connected
}

type options struct {
	logger   *slog.Logger
	clock    clock.Clock
	factory  connection.ClientFactory
	metrics  *metrics.Metrics
	newID    func() (string, error)
	recordID func() string
	notifier notify.Notifier
}

// Option customizes a Client.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the time source for every timer the client arms.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithClientFactory replaces the WebSocket transport.
func WithClientFactory(f connection.ClientFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithIDGenerator replaces the correlation id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(o *options) { o.newID = gen }
}

// WithRecordIDGenerator replaces the history record id generator.
func WithRecordIDGenerator(gen func() string) Option {
	return func(o *options) { o.recordID = gen }
}

// WithNotifier receives every notification in addition to the
// Notifications channel.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// New creates a Client in the Idle state. Nothing is dialed until Connect.
func New(cfg Config, opts ...Option) *Client {
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if cfg.NotificationBuffer <= 0 {
		cfg.NotificationBuffer = 256
	}
	if cfg.DefaultTopics == nil {
		cfg.DefaultTopics = subscription.DefaultTopics
	}

	c := &Client{
		cfg:       cfg,
		logger:    o.logger.With("component", "hub"),
		clock:     o.clock,
		metrics:   o.metrics,
		connected: make(chan struct{}),
	}

	c.notes = notify.NewChannel(cfg.NotificationBuffer, o.logger, notify.WithDropHook(o.metrics.NotificationDropped))
	c.notifier = c.notes
	if o.notifier != nil {
		c.notifier = notify.Fanout{c.notes, o.notifier}
	}

	c.manager = connection.NewManager(cfg.Connection, o.factory, c, o.logger,
		connection.WithClock(o.clock),
		connection.WithMetrics(o.metrics),
	)
	c.registry = subscription.NewRegistry(c.manager, o.logger)
	c.table = correlation.NewTable(cfg.RequestTimeout,
		correlation.WithClock(o.clock),
		correlation.WithLogger(o.logger),
		correlation.WithMetrics(o.metrics),
		correlation.WithIDGenerator(o.newID),
		correlation.WithObserver(c.observeRequest),
	)
	c.router = router.NewRouter(cfg.Router, router.Sinks{
		Subscriptions: c.registry,
		Responses:     c.table,
		Notifier:      c.notifier,
	}, o.logger,
		router.WithClock(o.clock),
		router.WithMetrics(o.metrics),
		router.WithIDGenerator(o.recordID),
	)
	return c
}

// Connect starts connecting. It is a no-op while Connecting or Connected.
func (c *Client) Connect() {
	c.manager.Connect()
}

// Disconnect closes the connection and cancels every pending reconnect.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// Close disconnects and closes the Notifications channel.
func (c *Client) Close() {
	c.manager.Disconnect()
	c.notes.Close()
}

// SendCommand writes a raw command. Returns connection.ErrNotConnected when
// not Connected.
func (c *Client) SendCommand(cmd protocol.Command) error {
	return c.manager.SendCommand(cmd)
}

// Subscribe asks the hub for topics. The topics are remembered and requested
// again after every reconnect, even when this send fails.
func (c *Client) Subscribe(topics ...string) error {
	return c.registry.Subscribe(topics...)
}

// Unsubscribe asks the hub to drop topics.
func (c *Client) Unsubscribe(topics ...string) error {
	return c.registry.Unsubscribe(topics...)
}

// Subscriptions returns the topics the hub has confirmed, sorted.
func (c *Client) Subscriptions() []string {
	return c.registry.Topics()
}

// ProcessWithAgent sends a correlated agent_process request. The returned
// future settles with the agent's response, its error, a timeout or
// correlation.ErrConnectionLost. When not Connected the future is already
// rejected with connection.ErrNotConnected.
func (c *Client) ProcessWithAgent(agentType, message string) *correlation.Future {
	if c.manager.State() != connection.StateConnected {
		c.notify(notify.SeverityWarning, notify.EventNotConnected,
			"Cannot process with agent: not connected to event hub")
		return correlation.Rejected("", fmt.Errorf("agent %s: %w", agentType, connection.ErrNotConnected))
	}

	return c.table.Call(func(id string) error {
		return c.manager.SendCommand(protocol.AgentProcess(agentType, message, id))
	})
}

// StartWorkflow sends a fire-and-forget workflow_start command and returns
// its request id. Progress arrives as workflow_update frames.
func (c *Client) StartWorkflow(claimData map[string]any) (string, error) {
	id, err := c.table.ID()
	if err != nil {
		return "", err
	}
	if err := c.manager.SendCommand(protocol.WorkflowStart(claimData, id)); err != nil {
		c.notify(notify.SeverityError, notify.EventSendFailed, "Failed to start workflow: "+err.Error())
		return "", fmt.Errorf("start workflow %s: %w", id, err)
	}
	c.logger.Info("workflow start sent", "request_id", id)
	return id, nil
}

// RequestStats asks the hub for a stats frame.
func (c *Client) RequestStats() error {
	return c.manager.SendCommand(protocol.GetStats())
}

// Ping sends an application-level ping.
func (c *Client) Ping() error {
	return c.manager.SendCommand(protocol.Ping())
}

// AgentActivities returns agent activity records, newest first.
func (c *Client) AgentActivities() []router.AgentActivity { return c.router.AgentActivities() }

// WorkflowUpdates returns workflow update records, newest first.
func (c *Client) WorkflowUpdates() []router.WorkflowUpdate { return c.router.WorkflowUpdates() }

// SystemStatuses returns system status records, newest first.
func (c *Client) SystemStatuses() []router.SystemStatus { return c.router.SystemStatuses() }

// ConnectionStats returns the latest stats snapshot from the hub.
func (c *Client) ConnectionStats() (router.ConnectionStats, bool) { return c.router.ConnectionStats() }

// State returns the connection state.
func (c *Client) State() connection.State { return c.manager.State() }

// ReconnectAttempts returns the reconnect attempts since the last open.
func (c *Client) ReconnectAttempts() int { return c.manager.ReconnectAttempts() }

// PendingRequests returns the number of outstanding correlated requests.
func (c *Client) PendingRequests() int { return c.table.Pending() }

// Notifications returns the notification stream. It is closed by Close.
func (c *Client) Notifications() <-chan notify.Notification { return c.notes.C() }

// Stats returns statistics from every component.
func (c *Client) Stats() Stats {
	sent, dropped := c.notes.Stats()
	return Stats{
		Connection:           c.manager.Stats(),
		Router:               c.router.Stats(),
		PendingRequests:      c.table.Pending(),
		Requests:             c.table.Requests(),
		Subscriptions:        c.registry.Topics(),
		DesiredTopics:        c.registry.Desired(),
		NotificationsSent:    sent,
		NotificationsDropped: dropped,
	}
}

// WaitConnected blocks until the client is Connected or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ch := c.connected
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent implements connection.Listener.
func (c *Client) HandleEvent(ev connection.Event) {
	switch ev.Kind {
	case connection.EventOpened:
		c.setConnected(true)
		c.notify(notify.SeveritySuccess, notify.EventConnected, "Connected to event hub")

	case connection.EventSettled:
		if err := c.registry.Resubscribe(c.cfg.DefaultTopics); err != nil {
			c.logger.Warn("failed to subscribe after connect", "error", err)
		}

	case connection.EventClosed:
		c.connectionLost()
		msg := "Disconnected from event hub"
		if ev.Err != nil {
			msg += ": " + ev.Err.Error()
		}
		c.notify(notify.SeverityWarning, notify.EventDisconnected, msg)

	case connection.EventManualClose:
		c.connectionLost()
		c.notify(notify.SeverityInfo, notify.EventDisconnected, "Disconnected from event hub")

	case connection.EventReconnectScheduled:
		c.notify(notify.SeverityInfo, notify.EventReconnecting,
			fmt.Sprintf("Reconnecting in %s (attempt %d/%d)", ev.Delay, ev.Attempt, c.cfg.Connection.MaxReconnectAttempts))

	case connection.EventExhausted:
		c.notify(notify.SeverityError, notify.EventReconnectExhausted,
			fmt.Sprintf("Failed to reconnect after %d attempts", ev.Attempt))

	case connection.EventDialFailed:
		c.notify(notify.SeverityWarning, notify.EventDialFailed, "Failed to connect to event hub: "+errText(ev.Err))
	}
}

// HandleMessage implements connection.Listener.
func (c *Client) HandleMessage(msg connection.TimestampedMessage) {
	f, err := protocol.Decode(msg.Data)
	if err != nil {
		c.metrics.DecodeError()
		c.logger.Warn("failed to decode frame", "error", err, "bytes", len(msg.Data))
		c.notify(notify.SeverityWarning, notify.EventDecodeError, "Received malformed message from event hub")
		return
	}
	c.router.Route(f)
}

// connectionLost clears state tied to the previous connection.
func (c *Client) connectionLost() {
	c.setConnected(false)
	c.registry.Reset()
	if n := c.table.RejectAll(correlation.ErrConnectionLost); n > 0 {
		c.logger.Warn("rejected pending requests", "count", n)
	}
}

func (c *Client) setConnected(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.connected:
		if !up {
			c.connected = make(chan struct{})
		}
	default:
		if up {
			close(c.connected)
		}
	}
}

func (c *Client) observeRequest(id, outcome string, err error) {
	if outcome == metrics.OutcomeTimeout {
		c.notify(notify.SeverityWarning, notify.EventRequestTimeout,
			fmt.Sprintf("Request %s timed out after %s", id, c.requestTimeout()))
	}
}

func (c *Client) requestTimeout() time.Duration {
	if c.cfg.RequestTimeout <= 0 {
		return correlation.DefaultTimeout
	}
	return c.cfg.RequestTimeout
}

func (c *Client) notify(sev notify.Severity, event, msg string) {
	c.notifier.Notify(notify.Notification{
		Severity: sev,
		Event:    event,
		Message:  msg,
		At:       c.clock.Now(),
	})
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
