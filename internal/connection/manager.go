package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/rickgao/hubclient/internal/clock"
	"github.com/rickgao/hubclient/internal/metrics"
	"github.com/rickgao/hubclient/internal/protocol"
)

// Manager owns the single hub connection: its lifecycle state machine, the
// reconnect policy, the heartbeat and the outbound path.
//
// Every transport, timer and pump goroutine is tagged with the generation it
// was created for. Disconnect and every new dial bump the generation, so a
// callback that fires late sees a mismatch and does nothing.
type Manager struct {
	cfg      ManagerConfig
	factory  ClientFactory
	listener Listener
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limiter  *rate.Limiter

	mu             sync.Mutex
	state          State
	gen            uint64
	attempts       int
	exhausted      bool
	client         Client
	stop           chan struct{} // closed when the current connection ends
	cancelDial     context.CancelFunc
	dialDone       chan struct{} // closed when the latest dial goroutine returns
	reconnectTimer clock.Timer
	settleTimer    clock.Timer
	heartbeat      *heartbeat
	stats          ManagerStats
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source for reconnect, settle and heartbeat timers.
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithMetrics records connection metrics.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Connection Manager in StateIdle. A nil factory uses
// DefaultFactory.
func NewManager(cfg ManagerConfig, factory ClientFactory, listener Listener, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = DefaultFactory
	}
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultManagerConfig().Backoff
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}

	m := &Manager{
		cfg:      cfg,
		factory:  factory,
		listener: listener,
		clock:    clock.Real(),
		logger:   logger.With("component", "connection"),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.SendRate > 0 {
		burst := cfg.SendBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}

	m.metrics.SetConnectionState(int(StateIdle))
	return m
}

// Connect starts connecting unless the Manager is already Connected or
// Connecting. The dial runs in the background; observe EventOpened or
// EventDialFailed. An external Connect resets the reconnect attempt counter.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		state := m.state
		m.mu.Unlock()
		m.logger.Debug("connect ignored", "state", state)
		return
	}

	m.attempts = 0
	m.exhausted = false
	m.stopTimersLocked()
	t := m.beginDialLocked()
	m.mu.Unlock()

	m.logger.Info("connecting", "url", m.cfg.Client.URL, "generation", t.gen)
	go m.dial(t)
}

// Disconnect closes the connection with a normal closure code and cancels
// every pending timer and dial. It never leads to a reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	prevState := m.state
	if prevState == StateIdle {
		// Nothing was ever dialed.
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.stopTimersLocked()
	c := m.endConnLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.setStateLocked(StateManuallyClosed)
	m.mu.Unlock()

	if c != nil {
		if err := c.Close(); err != nil {
			m.logger.Debug("close transport", "error", err)
		}
	}

	if prevState == StateManuallyClosed {
		return
	}
	m.logger.Info("disconnected by caller", "previous_state", prevState)
	m.emit(Event{Kind: EventManualClose, Generation: gen})
}

// SendCommand encodes cmd and writes it to the live transport. It fails fast
// with ErrNotConnected when the Manager is not Connected.
func (m *Manager) SendCommand(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateConnected || m.client == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	c := m.client
	m.mu.Unlock()

	if m.limiter != nil && !m.limiter.AllowN(m.clock.Now(), 1) {
		m.metrics.CommandSent(cmd.Type, ErrRateLimited)
		return fmt.Errorf("send %s: %w", cmd.Type, ErrRateLimited)
	}

	return m.write(c, cmd.Type, data)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectAttempts returns the number of reconnects scheduled since the
// last successful open or external Connect.
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.State = m.state
	s.Attempts = m.attempts
	s.Generation = m.gen
	return s
}

// dialTicket carries one dial attempt from beginDialLocked to dial.
type dialTicket struct {
	gen  uint64
	ctx  context.Context
	prev chan struct{} // closed when the previous dial returned
	done chan struct{} // closed when this dial returns
}

// beginDialLocked moves to Connecting under a fresh generation.
func (m *Manager) beginDialLocked() dialTicket {
	m.gen++
	if m.cancelDial != nil {
		m.cancelDial()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	t := dialTicket{
		gen:  m.gen,
		ctx:  ctx,
		prev: m.dialDone,
		done: make(chan struct{}),
	}
	m.dialDone = t.done
	m.stats.Dials++
	m.setStateLocked(StateConnecting)
	return t
}

// dial builds and connects a transport for t.gen. It waits for the previous
// dial to return first so two transports are never live at once.
func (m *Manager) dial(t dialTicket) {
	defer close(t.done)
	if t.prev != nil {
		<-t.prev
	}

	c, err := m.factory(m.cfg.Client, m.logger.With("generation", t.gen))
	if err == nil {
		err = c.Connect(t.ctx)
	}
	if err != nil {
		if c != nil {
			c.Close()
		}
		m.handleDialFailed(t.gen, err)
		return
	}
	m.handleOpened(t.gen, c)
}

func (m *Manager) handleOpened(gen uint64, c Client) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		m.logger.Debug("discarding stale transport", "generation", gen)
		c.Close()
		return
	}

	m.client = c
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.attempts = 0
	m.exhausted = false
	m.stats.Opens++
	m.setStateLocked(StateConnected)

	stop := make(chan struct{})
	m.stop = stop
	m.heartbeat = startHeartbeat(m.clock, m.cfg.HeartbeatInterval, func() error {
		return m.sendHeartbeat(gen)
	}, m.logger)
	m.settleTimer = m.clock.AfterFunc(m.cfg.SettleDelay, func() {
		m.settled(gen)
	})
	m.mu.Unlock()

	m.logger.Info("connected", "url", m.cfg.Client.URL, "generation", gen)
	m.emit(Event{Kind: EventOpened, Generation: gen})

	go m.pump(gen, c, stop)
}

func (m *Manager) handleDialFailed(gen uint64, err error) {
	m.mu.Lock()
	current := gen == m.gen && m.state == StateConnecting
	if current {
		m.stats.DialFailures++
	}
	m.mu.Unlock()
	if !current {
		return
	}

	m.metrics.DialFailed()
	m.logger.Warn("dial failed", "generation", gen, "error", err)
	m.emit(Event{Kind: EventDialFailed, Generation: gen, Err: err})
	m.handleClosed(gen, err)
}

// handleClosed runs the closed path for gen: state Disconnected, then either
// a reconnect is scheduled or, once the ceiling is reached, EventExhausted is
// emitted exactly once.
func (m *Manager) handleClosed(gen uint64, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.state == StateManuallyClosed || m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}

	m.stopTimersLocked()
	c := m.endConnLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.stats.Closes++
	m.setStateLocked(StateDisconnected)

	events := []Event{{Kind: EventClosed, Generation: gen, Err: cause}}

	if m.attempts < m.cfg.MaxReconnectAttempts {
		m.attempts++
		m.stats.Reconnects++
		attempt := m.attempts
		delay := m.cfg.Backoff.Delay(attempt)
		m.reconnectTimer = m.clock.AfterFunc(delay, func() {
			m.reconnect(gen)
		})
		events = append(events, Event{Kind: EventReconnectScheduled, Generation: gen, Attempt: attempt, Delay: delay})
	} else if !m.exhausted {
		m.exhausted = true
		m.stats.Exhaustions++
		events = append(events, Event{Kind: EventExhausted, Generation: gen, Attempt: m.attempts})
	}
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}

	for _, ev := range events {
		switch ev.Kind {
		case EventClosed:
			m.logger.Warn("connection lost", "generation", gen, "error", cause)
		case EventReconnectScheduled:
			m.metrics.ReconnectScheduled()
			m.logger.Info("reconnect scheduled", "attempt", ev.Attempt, "delay", ev.Delay)
		case EventExhausted:
			m.metrics.ReconnectExhausted()
			m.logger.Error("reconnect attempts exhausted", "attempts", ev.Attempt)
		}
		m.emit(ev)
	}
}

// reconnect fires from the reconnect timer armed for gen. The dial runs on
// the timer's goroutine.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	t := m.beginDialLocked()
	attempt := m.attempts
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt, "generation", t.gen)
	m.dial(t)
}

func (m *Manager) settled(gen uint64) {
	m.mu.Lock()
	ok := gen == m.gen && m.state == StateConnected
	m.settleTimer = nil
	m.mu.Unlock()
	if ok {
		m.emit(Event{Kind: EventSettled, Generation: gen})
	}
}

// pump forwards transport output to the listener in order until the
// connection ends. Messages buffered before an error are delivered first.
func (m *Manager) pump(gen uint64, c Client, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case msg, ok := <-c.Messages():
			if !ok {
				m.handleClosed(gen, ErrConnectionClosed)
				return
			}
			if !m.deliver(gen, msg) {
				return
			}

		case err := <-c.Errors():
			m.drain(gen, c)
			m.handleClosed(gen, err)
			return
		}
	}
}

func (m *Manager) drain(gen uint64, c Client) {
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok || !m.deliver(gen, msg) {
				return
			}
		default:
			return
		}
	}
}

func (m *Manager) deliver(gen uint64, msg TimestampedMessage) bool {
	m.mu.Lock()
	current := gen == m.gen
	m.mu.Unlock()
	if !current {
		return false
	}
	if m.listener != nil {
		m.listener.HandleMessage(msg)
	}
	return true
}

func (m *Manager) sendHeartbeat(gen uint64) error {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected || m.client == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	c := m.client
	m.mu.Unlock()

	data, err := protocol.Encode(protocol.Ping())
	if err != nil {
		return err
	}
	return m.write(c, protocol.CmdPing, data)
}

func (m *Manager) write(c Client, cmdType string, data []byte) error {
	err := c.Send(data)
	m.metrics.CommandSent(cmdType, err)
	if err != nil {
		return fmt.Errorf("send %s: %w", cmdType, err)
	}

	m.mu.Lock()
	m.stats.CommandsSent++
	m.mu.Unlock()
	return nil
}

// stopTimersLocked cancels the reconnect, settle and heartbeat timers.
func (m *Manager) stopTimersLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.settleTimer != nil {
		m.settleTimer.Stop()
		m.settleTimer = nil
	}
	m.heartbeat.stop()
	m.heartbeat = nil
}

// endConnLocked detaches the live transport and stops its pump. The caller
// closes the returned client outside the lock.
func (m *Manager) endConnLocked() Client {
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	c := m.client
	m.client = nil
	return c
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	m.metrics.SetConnectionState(int(s))
}

func (m *Manager) emit(ev Event) {
	if m.listener != nil {
		m.listener.HandleEvent(ev)
	}
}
