package connection

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/hubclient/internal/clock"
)

// heartbeat sends a liveness frame every interval until stopped. It does not
// watch for pongs; a dead link surfaces through the transport's error path.
type heartbeat struct {
	clock    clock.Clock
	interval time.Duration
	send     func() error
	logger   *slog.Logger

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
	beats   int
}

func startHeartbeat(clk clock.Clock, interval time.Duration, send func() error, logger *slog.Logger) *heartbeat {
	h := &heartbeat{
		clock:    clk,
		interval: interval,
		send:     send,
		logger:   logger,
	}
	if interval <= 0 {
		h.stopped = true
		return h
	}
	h.arm()
	return h
}

func (h *heartbeat) arm() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.timer = h.clock.AfterFunc(h.interval, h.beat)
}

func (h *heartbeat) beat() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.beats++
	h.mu.Unlock()

	if err := h.send(); err != nil {
		h.logger.Debug("failed to send heartbeat", "error", err)
	}
	h.arm()
}

// stop cancels the pending beat. Safe to call more than once.
func (h *heartbeat) stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *heartbeat) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}
