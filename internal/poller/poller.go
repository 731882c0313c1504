package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/hubclient/internal/connection"
)

// StatsRequester sends a get_stats command.
type StatsRequester interface {
	RequestStats() error
}

// StatsRequesterFunc is a function adapter for StatsRequester.
type StatsRequesterFunc func() error

func (f StatsRequesterFunc) RequestStats() error {
	return f()
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Sent    int64
	Skipped int64 // cycles skipped because the client was not connected
	Errors  int64
}

// Poller periodically asks the hub for connection stats.
type Poller struct {
	cfg    Config
	source StatsRequester
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sent    atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

// New creates a new Poller.
func New(cfg Config, source StatsRequester, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:    cfg,
		source: source,
		logger: logger.With("component", "poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stats poller started", "interval", p.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stats poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Skipped: p.skipped.Load(),
		Errors:  p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	err := p.source.RequestStats()
	switch {
	case err == nil:
		p.sent.Add(1)
	case errors.Is(err, connection.ErrNotConnected):
		p.skipped.Add(1)
		p.logger.Debug("stats poll skipped, not connected")
	default:
		p.errors.Add(1)
		p.logger.Warn("failed to request stats", "err", err)
	}
}
