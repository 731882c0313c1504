// Package conntest provides an in-memory transport for exercising the
// Connection Manager and everything layered on it without a network.
package conntest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/hubclient/internal/connection"
)

// ErrDialRefused is the default error for dials failed with FailDials.
var ErrDialRefused = errors.New("conntest: dial refused")

// Transport is a fake connection.Client. Frames pushed with Deliver come out
// of Messages; Fail ends the connection from the "server" side.
type Transport struct {
	cfg connection.ClientConfig

	messages chan connection.TimestampedMessage
	errors   chan error

	mu         sync.Mutex
	connectErr error
	connected  bool
	closed     bool
	sent       [][]byte
}

func newTransport(cfg connection.ClientConfig, connectErr error) *Transport {
	return &Transport{
		cfg:        cfg,
		messages:   make(chan connection.TimestampedMessage, 1024),
		errors:     make(chan error, 1),
		connectErr: connectErr,
	}
}

// Connect succeeds immediately unless the factory was told to fail it.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return connection.ErrAlreadyClosed
	}
	if t.connectErr != nil {
		return t.connectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.connected = true
	return nil
}

// Close marks the transport closed. Like the real client it reports nothing
// on Errors.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
	return nil
}

// Send records data.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return connection.ErrNotConnected
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *Transport) Messages() <-chan connection.TimestampedMessage { return t.messages }

func (t *Transport) Errors() <-chan error { return t.errors }

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Config returns the ClientConfig the transport was built with.
func (t *Transport) Config() connection.ClientConfig { return t.cfg }

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Deliver queues a raw inbound frame.
func (t *Transport) Deliver(raw string) {
	t.messages <- connection.TimestampedMessage{
		Data:       []byte(raw),
		ReceivedAt: time.Now(),
	}
}

// DeliverJSON marshals v and queues it.
func (t *Transport) DeliverJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.Deliver(string(data))
	return nil
}

// Fail drops the connection with err, as a read error would.
func (t *Transport) Fail(err error) {
	t.mu.Lock()
	t.connected = false
	t.mu.Unlock()

	select {
	case t.errors <- err:
	default:
	}
}

// Sent returns a copy of every frame written.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentCommands decodes every written frame. Frames that are not JSON
// objects are skipped.
func (t *Transport) SentCommands() []map[string]any {
	var out []map[string]any
	for _, data := range t.Sent() {
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err == nil {
			out = append(out, obj)
		}
	}
	return out
}

// SentOfType returns the written commands whose "type" is cmdType.
func (t *Transport) SentOfType(cmdType string) []map[string]any {
	var out []map[string]any
	for _, cmd := range t.SentCommands() {
		if cmd["type"] == cmdType {
			out = append(out, cmd)
		}
	}
	return out
}

// Factory is a connection.ClientFactory that records every Transport it
// builds.
type Factory struct {
	mu         sync.Mutex
	transports []*Transport
	failDials  int
	dialErr    error
	rejectNew  int
	onNew      func(*Transport)
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// New implements connection.ClientFactory.
func (f *Factory) New(cfg connection.ClientConfig, _ *slog.Logger) (connection.Client, error) {
	f.mu.Lock()
	if f.rejectNew > 0 {
		f.rejectNew--
		f.mu.Unlock()
		return nil, errors.New("conntest: construction rejected")
	}

	var connectErr error
	if f.failDials > 0 {
		f.failDials--
		connectErr = f.dialErr
	}
	t := newTransport(cfg, connectErr)
	f.transports = append(f.transports, t)
	hook := f.onNew
	f.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return t, nil
}

// FailDials makes the next n transports fail Connect with err (ErrDialRefused
// when err is nil).
func (f *Factory) FailDials(n int, err error) {
	if err == nil {
		err = ErrDialRefused
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDials = n
	f.dialErr = err
}

// RejectNew makes the next n calls to New return an error without building a
// transport.
func (f *Factory) RejectNew(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNew = n
}

// OnNew registers a hook run for every transport built.
func (f *Factory) OnNew(hook func(*Transport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onNew = hook
}

// Count returns how many transports were built.
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transports)
}

// Get returns the i-th transport built.
func (f *Factory) Get(i int) *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.transports) {
		return nil
	}
	return f.transports[i]
}

// Last returns the most recent transport, or nil.
func (f *Factory) Last() *Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}

// Live returns how many transports are connected and not closed.
func (f *Factory) Live() int {
	f.mu.Lock()
	ts := append([]*Transport(nil), f.transports...)
	f.mu.Unlock()

	n := 0
	for _, t := range ts {
		if t.IsConnected() && !t.Closed() {
			n++
		}
	}
	return n
}
