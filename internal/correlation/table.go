// Package correlation implements the Request Correlation Layer.
//
// A Table owns every outstanding correlated request. Each request gets a
// UUIDv7 correlation id and a deadline timer, and is registered before its
// command is written so a fast response can never miss it. A request leaves
// the table on the first of: a matching response, a matching error, the
// deadline, or the connection closing.
package correlation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/hubclient/internal/clock"
	"github.com/rickgao/hubclient/internal/metrics"
)

// Errors
var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrConnectionLost = errors.New("connection lost before response")
	ErrPending        = errors.New("request still pending")
)

// DefaultTimeout is the deadline for a correlated request.
const DefaultTimeout = 30 * time.Second

// AgentError is the rejection carried by an agent_error frame.
type AgentError struct {
	RequestID string
	AgentType string
	Message   string
}

func (e *AgentError) Error() string {
	if e.AgentType != "" {
		return fmt.Sprintf("agent %s: %s", e.AgentType, e.Message)
	}
	return "agent error: " + e.Message
}

// Request describes one pending request.
type Request struct {
	ID       string    `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
	Deadline time.Time `json:"deadline"`
}

// Observer is told about every settled request.
type Observer func(id, outcome string, err error)

type pendingRequest struct {
	future   *Future
	deadline time.Time
	timer    clock.Timer
}

// Table tracks outstanding correlated requests.
type Table struct {
	timeout  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	newID    func() (string, error)
	observer Observer

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// Option customizes a Table.
type Option func(*Table)

// WithClock sets the time source for deadlines.
func WithClock(c clock.Clock) Option {
	return func(t *Table) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Table) { t.metrics = m }
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(t *Table) {
		if gen != nil {
			t.newID = gen
		}
	}
}

// WithObserver registers a callback for settled requests. It runs without the
// table lock held.
func WithObserver(o Observer) Option {
	return func(t *Table) { t.observer = o }
}

// NewTable creates a Table. A non-positive timeout uses DefaultTimeout.
func NewTable(timeout time.Duration, opts ...Option) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Table{
		timeout: timeout,
		clock:   clock.Real(),
		logger:  slog.Default(),
		newID:   NewID,
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "correlation")
	return t
}

// NewID returns a time-ordered UUIDv7 string.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return id.String(), nil
}

// ID allocates a correlation id without registering a request. Used for
// fire-and-forget commands that carry an id for traceability.
func (t *Table) ID() (string, error) {
	return t.newID()
}

// Call allocates an id, registers the pending request with its deadline and
// then calls send with the id. A send error rejects the future immediately.
func (t *Table) Call(send func(id string) error) *Future {
	id, err := t.newID()
	if err != nil {
		return Rejected("", err)
	}

	now := t.clock.Now()
	f := newFuture(id, now)
	p := &pendingRequest{
		future:   f,
		deadline: now.Add(t.timeout),
	}

	t.mu.Lock()
	t.pending[id] = p
	p.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(id) })
	n := len(t.pending)
	t.mu.Unlock()
	t.metrics.SetPendingRequests(n)

	if err := send(id); err != nil {
		t.finish(id, "", err, metrics.OutcomeRejected)
		return f
	}
	t.logger.Debug("request issued", "request_id", id, "deadline", p.deadline)
	return f
}

// Resolve settles request id with value. Returns false when id is unknown or
// already settled.
func (t *Table) Resolve(id, value string) bool {
	return t.finish(id, value, nil, metrics.OutcomeResolved)
}

// Reject settles request id with err.
func (t *Table) Reject(id string, err error) bool {
	return t.finish(id, "", err, metrics.OutcomeRejected)
}

// RejectAll rejects every pending request with err and returns how many were
// rejected.
func (t *Table) RejectAll(err error) int {
	t.mu.Lock()
	ids := make([]string, 0, len(t.pending))
	for id := range t.pending {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	outcome := metrics.OutcomeRejected
	if errors.Is(err, ErrConnectionLost) {
		outcome = metrics.OutcomeLost
	}

	n := 0
	for _, id := range ids {
		if t.finish(id, "", err, outcome) {
			n++
		}
	}
	return n
}

// Pending returns the number of outstanding requests.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Requests returns the outstanding requests ordered by issue time.
func (t *Table) Requests() []Request {
	t.mu.Lock()
	out := make([]Request, 0, len(t.pending))
	for id, p := range t.pending {
		out = append(out, Request{ID: id, IssuedAt: p.future.issuedAt, Deadline: p.deadline})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

func (t *Table) expire(id string) {
	err := fmt.Errorf("request %s after %v: %w", id, t.timeout, ErrRequestTimeout)
	if t.finish(id, "", err, metrics.OutcomeTimeout) {
		t.logger.Warn("request timed out", "request_id", id, "timeout", t.timeout)
	}
}

// finish removes id and settles its future. Only the first call for an id
// does anything.
func (t *Table) finish(id, value string, err error, outcome string) bool {
	t.mu.Lock()
	p, ok := t.pending[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	delete(t.pending, id)
	if p.timer != nil {
		p.timer.Stop()
	}
	n := len(t.pending)
	t.mu.Unlock()

	p.future.settle(value, err)

	t.metrics.SetPendingRequests(n)
	t.metrics.ObserveRequest(outcome, t.clock.Now().Sub(p.future.issuedAt))
	if t.observer != nil {
		t.observer(id, outcome, err)
	}
	return true
}
