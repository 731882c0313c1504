// Package notify is the side channel that turns protocol and transport events
// into (severity, message) notifications for an external consumer such as a
// toast or alerting layer. Nothing here renders anything.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Severity of a notification.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeveritySuccess
	SeverityWarning
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Level maps a severity onto the slog level used when logging it.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityDebug:
		return slog.LevelDebug
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Client-side event names. Frame-driven notifications use the frame tag.
const (
	EventConnected          = "connected"
	EventDisconnected       = "disconnected"
	EventReconnecting       = "reconnecting"
	EventReconnectExhausted = "reconnect_exhausted"
	EventDialFailed         = "dial_failed"
	EventDecodeError        = "decode_error"
	EventClassifyError      = "classify_error"
	EventUnknownFrame       = "unknown_frame"
	EventNotConnected       = "not_connected"
	EventSendFailed         = "send_failed"
	EventRequestTimeout     = "request_timeout"
)

// Notification is one side-channel message.
type Notification struct {
	Severity Severity
	Event    string
	Message  string
	At       time.Time
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Channel is a Notifier backed by a buffered channel. When the consumer falls
// behind, notifications are dropped and counted rather than blocking the
// caller.
type Channel struct {
	logger *slog.Logger
	ch     chan Notification
	onDrop func()

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

// ChannelOption customizes a Channel.
type ChannelOption func(*Channel)

// WithDropHook calls f each time a notification is dropped.
func WithDropHook(f func()) ChannelOption {
	return func(c *Channel) { c.onDrop = f }
}

// NewChannel creates a channel notifier with the given buffer size. Every
// notification is also logged at its severity's level.
func NewChannel(bufferSize int, logger *slog.Logger, opts ...ChannelOption) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	c := &Channel{
		logger: logger.With("component", "notify"),
		ch:     make(chan Notification, bufferSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify logs n and queues it for the consumer.
func (c *Channel) Notify(n Notification) {
	c.logger.Log(context.Background(), n.Severity.Level(), n.Message,
		"event", n.Event,
		"severity", n.Severity.String(),
	)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.ch <- n:
		c.delivered.Add(1)
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("notification buffer full, dropping notification", "event", n.Event)
	}
}

// C returns the receive side of the channel.
func (c *Channel) C() <-chan Notification {
	return c.ch
}

// Close closes the channel. Later notifications are only logged.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Stats returns delivered and dropped counts.
func (c *Channel) Stats() (delivered, dropped int64) {
	return c.delivered.Load(), c.dropped.Load()
}

// Recorder keeps every notification in memory. Used by tests and the CLI.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Notify appends n.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.all = append(r.all, n)
	r.mu.Unlock()
}

// All returns a copy of every recorded notification.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.all))
	copy(out, r.all)
	return out
}

// Events returns the recorded notifications with the given event name.
func (r *Recorder) Events(event string) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.all {
		if n.Event == event {
			out = append(out, n)
		}
	}
	return out
}

// Fanout forwards each notification to every target in order.
type Fanout []Notifier

func (f Fanout) Notify(n Notification) {
	for _, t := range f {
		if t != nil {
			t.Notify(n)
		}
	}
}
