package router

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rickgao/hubclient/internal/clock"
	"github.com/rickgao/hubclient/internal/correlation"
	"github.com/rickgao/hubclient/internal/metrics"
	"github.com/rickgao/hubclient/internal/notify"
	"github.com/rickgao/hubclient/internal/protocol"
)

// SubscriptionSink receives subscription confirmations.
type SubscriptionSink interface {
	Confirm(topics []string) []string
	ConfirmRemoval(topics []string) []string
}

// ResponseSink receives replies to correlated requests.
type ResponseSink interface {
	Resolve(id, value string) bool
	Reject(id string, err error) bool
}

// Sinks are the components the router dispatches into. Nil sinks are
// skipped.
type Sinks struct {
	Subscriptions SubscriptionSink
	Responses     ResponseSink
	Notifier      notify.Notifier
}

// Router classifies decoded frames and dispatches them: category records to
// the bounded histories, confirmations to the subscription registry, replies
// to the correlation table, and a notification for every frame.
type Router struct {
	cfg     RouterConfig
	sinks   Sinks
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	newID   func() string

	activities *History[AgentActivity]
	workflows  *History[WorkflowUpdate]
	statuses   *History[SystemStatus]

	mu    sync.RWMutex
	stats *ConnectionStats

	received       atomic.Int64
	routed         atomic.Int64
	classifyErrors atomic.Int64
	unknown        atomic.Int64
	unmatched      atomic.Int64
}

// Option customizes a Router.
type Option func(*Router)

// WithClock sets the time source for local timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithMetrics records routing metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithIDGenerator replaces the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Router) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewRouter creates a new Event Router.
func NewRouter(cfg RouterConfig, sinks Sinks, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultRouterConfig().HistoryCapacity
	}
	if sinks.Notifier == nil {
		sinks.Notifier = notify.Discard
	}

	r := &Router{
		cfg:        cfg,
		sinks:      sinks,
		logger:     logger.With("component", "router"),
		clock:      clock.Real(),
		newID:      uuid.NewString,
		activities: NewHistory[AgentActivity](cfg.HistoryCapacity),
		workflows:  NewHistory[WorkflowUpdate](cfg.HistoryCapacity),
		statuses:   NewHistory[SystemStatus](cfg.HistoryCapacity),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies f and dispatches it. It never panics on input; frames
// that fail classification become a classify_error notification.
func (r *Router) Route(f protocol.Frame) {
	r.received.Add(1)
	r.metrics.FrameReceived(f.Tag)

	ev, err := protocol.Classify(f)
	if err != nil {
		r.classifyErrors.Add(1)
		r.metrics.ClassifyError()
		r.logger.Warn("failed to classify frame", "tag", f.Tag, "error", err)
		r.notify(notify.SeverityWarning, notify.EventClassifyError,
			fmt.Sprintf("Malformed %s message: %v", f.Tag, err))
		return
	}

	r.dispatch(ev)
}

func (r *Router) dispatch(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ConnectionEstablished:
		msg := "Connected to event hub"
		if e.Message != "" {
			msg = e.Message
		}
		r.notify(notify.SeveritySuccess, e.Tag(), msg)

	case protocol.SubscriptionConfirmed:
		acked := e.Events
		if r.sinks.Subscriptions != nil {
			acked = r.sinks.Subscriptions.Confirm(e.Events)
		}
		r.notify(notify.SeverityInfo, e.Tag(), "Subscribed to: "+strings.Join(acked, ", "))

	case protocol.UnsubscriptionConfirmed:
		removed := e.Events
		if r.sinks.Subscriptions != nil {
			removed = r.sinks.Subscriptions.ConfirmRemoval(e.Events)
		}
		r.notify(notify.SeverityInfo, e.Tag(), "Unsubscribed from: "+strings.Join(removed, ", "))

	case protocol.AgentActivityEvent:
		rec := AgentActivity{
			ID:        r.newID(),
			Timestamp: r.timestamp(e.Timestamp),
			AgentName: orDefault(e.AgentName, UnknownAgent),
			Activity:  orDefault(e.Activity, UnknownActivity),
			Data:      e.Data,
		}
		r.activities.Push(rec)
		r.metrics.SetHistorySize(CategoryAgentActivity, r.activities.Len())
		r.notify(notify.SeverityInfo, e.Tag(), rec.AgentName+": "+rec.Activity)

	case protocol.WorkflowUpdateEvent:
		rec := WorkflowUpdate{
			ID:        r.newID(),
			Timestamp: r.timestamp(e.Timestamp),
			ClaimID:   orDefault(e.ClaimID, UnknownValue),
			Stage:     orDefault(e.Stage, UnknownValue),
			Status:    orDefault(e.Status, UnknownValue),
			Message:   e.Message,
			Progress:  e.Progress,
			Data:      e.Data,
		}
		r.workflows.Push(rec)
		r.metrics.SetHistorySize(CategoryWorkflowUpdate, r.workflows.Len())
		r.notify(workflowSeverity(rec.Status), e.Tag(),
			fmt.Sprintf("Claim %s: %s (%s)", rec.ClaimID, rec.Stage, rec.Status))

	case protocol.SystemStatusEvent:
		rec := SystemStatus{
			ID:        r.newID(),
			Timestamp: r.timestamp(e.Timestamp),
			Level:     ParseLevel(e.Level),
			Component: e.Component,
			Message:   e.Message,
			Data:      e.Data,
		}
		r.statuses.Push(rec)
		r.metrics.SetHistorySize(CategorySystemStatus, r.statuses.Len())
		msg := rec.Message
		if rec.Component != "" {
			msg = rec.Component + ": " + msg
		}
		r.notify(levelSeverity(rec.Level), e.Tag(), msg)

	case protocol.StatsEvent:
		r.mu.Lock()
		r.stats = &ConnectionStats{Fields: e.Snapshot, ReceivedAt: r.clock.Now()}
		r.mu.Unlock()
		r.notify(notify.SeverityDebug, e.Tag(), "Connection stats updated")

	case protocol.AgentResponse:
		if r.sinks.Responses == nil || !r.sinks.Responses.Resolve(e.RequestID, e.Response) {
			r.unmatched.Add(1)
			r.logger.Debug("agent response matched no pending request", "request_id", e.RequestID)
		}
		r.notify(notify.SeveritySuccess, e.Tag(), "Agent response received")

	case protocol.AgentError:
		agentErr := &correlation.AgentError{RequestID: e.RequestID, AgentType: e.AgentType, Message: e.Error}
		if r.sinks.Responses == nil || !r.sinks.Responses.Reject(e.RequestID, agentErr) {
			r.unmatched.Add(1)
			r.logger.Debug("agent error matched no pending request", "request_id", e.RequestID)
		}
		r.notify(notify.SeverityError, e.Tag(), "Agent error: "+e.Error)

	case protocol.WorkflowStarted:
		r.notify(notify.SeveritySuccess, e.Tag(), "Workflow started"+suffix(e.WorkflowID))

	case protocol.WorkflowProgress:
		msg := "Workflow progress"
		if e.Stage != "" {
			msg += ": " + e.Stage
		}
		r.notify(notify.SeverityInfo, e.Tag(), msg)

	case protocol.WorkflowCompleted:
		r.notify(notify.SeveritySuccess, e.Tag(), "Workflow completed"+suffix(e.WorkflowID))

	case protocol.WorkflowError:
		r.notify(notify.SeverityError, e.Tag(), "Workflow error: "+e.Error)

	case protocol.Pong:
		r.notify(notify.SeverityDebug, e.Tag(), "Pong received")

	case protocol.ServerError:
		r.notify(notify.SeverityError, e.Tag(), "Server error: "+e.Message)

	case protocol.Unknown:
		r.unknown.Add(1)
		r.logger.Debug("unknown message type", "tag", e.Frame.Tag)
		r.notify(notify.SeverityWarning, notify.EventUnknownFrame, "Unknown message type: "+e.Frame.Tag)
		return

	default:
		r.unknown.Add(1)
		r.logger.Warn("unhandled event variant", "type", fmt.Sprintf("%T", ev))
		return
	}

	r.routed.Add(1)
}

// AgentActivities returns the agent activity history, newest first.
func (r *Router) AgentActivities() []AgentActivity { return r.activities.Snapshot() }

// WorkflowUpdates returns the workflow update history, newest first.
func (r *Router) WorkflowUpdates() []WorkflowUpdate { return r.workflows.Snapshot() }

// SystemStatuses returns the system status history, newest first.
func (r *Router) SystemStatuses() []SystemStatus { return r.statuses.Snapshot() }

// ConnectionStats returns a copy of the latest stats snapshot. ok is false
// until the first stats frame.
func (r *Router) ConnectionStats() (ConnectionStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stats == nil {
		return ConnectionStats{}, false
	}
	return ConnectionStats{Fields: maps.Clone(r.stats.Fields), ReceivedAt: r.stats.ReceivedAt}, true
}

// Stats returns current router statistics.
func (r *Router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived: r.received.Load(),
		MessagesRouted:   r.routed.Load(),
		ClassifyErrors:   r.classifyErrors.Load(),
		UnknownMessages:  r.unknown.Load(),
		UnmatchedReplies: r.unmatched.Load(),
		AgentActivity:    r.activities.Stats(),
		WorkflowUpdate:   r.workflows.Stats(),
		SystemStatus:     r.statuses.Stats(),
	}
}

func (r *Router) notify(sev notify.Severity, event, msg string) {
	r.sinks.Notifier.Notify(notify.Notification{
		Severity: sev,
		Event:    event,
		Message:  msg,
		At:       r.clock.Now(),
	})
}

// timestamp keeps the hub's timestamp or stamps the current time.
func (r *Router) timestamp(ts string) string {
	if ts != "" {
		return ts
	}
	return r.clock.Now().UTC().Format(TimestampLayout)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func suffix(id string) string {
	if id == "" {
		return ""
	}
	return " (" + id + ")"
}

func levelSeverity(l StatusLevel) notify.Severity {
	switch l {
	case LevelWarning:
		return notify.SeverityWarning
	case LevelError:
		return notify.SeverityError
	default:
		return notify.SeverityInfo
	}
}

func workflowSeverity(status string) notify.Severity {
	switch status {
	case "completed":
		return notify.SeveritySuccess
	case "failed", "error":
		return notify.SeverityError
	default:
		return notify.SeverityInfo
	}
}
