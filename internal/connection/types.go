package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected     = errors.New("not connected")
	ErrStaleConnection  = errors.New("connection stale (no inbound traffic)")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrConnectionClosed = errors.New("connection closed")
	ErrRateLimited      = errors.New("outbound rate limit exceeded")
	ErrInvalidURL       = errors.New("invalid websocket url")
)

// State is the Connection Manager's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateManuallyClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateManuallyClosed:
		return "manually_closed"
	default:
		return "unknown"
	}
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Event hub URL (ws:// or wss://)
	Token        string        // Bearer token for the Authorization header (empty = none)
	DialTimeout  time.Duration // WebSocket handshake timeout
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
	StaleTimeout time.Duration // Max time without inbound traffic (0 = disabled)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client               ClientConfig
	MaxReconnectAttempts int           // Reconnects scheduled before giving up
	Backoff              Backoff       // Delay before each reconnect attempt
	HeartbeatInterval    time.Duration // Ping interval while connected (0 = disabled)
	SettleDelay          time.Duration // Delay between open and EventSettled
	SendRate             float64       // Outbound commands per second (0 = unlimited)
	SendBurst            int           // Burst size for SendRate
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:               DefaultClientConfig(),
		MaxReconnectAttempts: 5,
		Backoff:              FixedBackoff{Wait: 3 * time.Second},
		HeartbeatInterval:    30 * time.Second,
		SettleDelay:          time.Second,
	}
}

// EventKind identifies a lifecycle event emitted by the Manager.
type EventKind int

const (
	EventOpened             EventKind = iota // transport open, state Connected
	EventClosed                              // transport lost, state Disconnected
	EventReconnectScheduled                  // reconnect timer armed
	EventExhausted                           // attempt ceiling reached
	EventDialFailed                          // transport construction or dial failed
	EventSettled                             // SettleDelay elapsed while still Connected
	EventManualClose                         // Disconnect() called
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventReconnectScheduled:
		return "reconnect_scheduled"
	case EventExhausted:
		return "exhausted"
	case EventDialFailed:
		return "dial_failed"
	case EventSettled:
		return "settled"
	case EventManualClose:
		return "manual_close"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification from the Manager.
type Event struct {
	Kind       EventKind
	Generation uint64        // Connection generation the event belongs to
	Attempt    int           // Reconnect attempt number (ReconnectScheduled, Exhausted)
	Delay      time.Duration // Reconnect delay (ReconnectScheduled)
	Err        error         // Cause (Closed, DialFailed)
}

// Listener receives Manager output. Calls are made without the Manager lock
// held; messages from one transport arrive in order on a single goroutine.
type Listener interface {
	HandleEvent(ev Event)
	HandleMessage(msg TimestampedMessage)
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State        State
	Attempts     int
	Generation   uint64
	Dials        int64
	DialFailures int64
	Opens        int64
	Closes       int64
	Reconnects   int64
	Exhaustions  int64
	CommandsSent int64
}
