package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/hubclient/internal/notify"
	"github.com/rickgao/hubclient/internal/poller"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		topics     []string
		showDebug  bool
		statsEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print every notification",
		Long: `Connect to the hub, subscribe to the configured default topics plus
any --topic, and print notifications until interrupted. When metrics are
enabled, /health, /debug/stats and the metrics path are served on
metrics.port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), flags, topics, showDebug, statsEvery)
		},
	}

	cmd.Flags().StringSliceVarP(&topics, "topic", "t", nil, "extra topic to subscribe to (repeatable)")
	cmd.Flags().BoolVar(&showDebug, "debug", false, "also print debug notifications (pong, stats)")
	cmd.Flags().DurationVar(&statsEvery, "stats-interval", 0, "request hub stats at this interval, overrides stats.poll_interval")

	return cmd
}

func runWatch(parent context.Context, flags *globalFlags, topics []string, showDebug bool, statsEvery time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(flags)
	if err != nil {
		return err
	}

	if len(topics) > 0 {
		// Remembered now, requested once the connection settles.
		_ = a.client.Subscribe(topics...)
	}
	a.client.Connect()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		printNotifications(os.Stdout, a.client.Notifications(), showDebug)
		return nil
	})

	if a.cfg.Metrics.Enabled {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           createHandler(a.client, a.registry, a.cfg.Metrics.Path, a.logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("starting health server", "port", a.cfg.Metrics.Port, "metrics_path", a.cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if statsEvery <= 0 {
		statsEvery = a.cfg.Stats.PollInterval
	}
	if statsEvery > 0 {
		p := poller.New(poller.Config{Interval: statsEvery}, a.client, a.logger)
		if err := p.Start(gctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			p.Stop(shutdownCtx)
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down...")
		a.client.Close()
		return nil
	})

	err = g.Wait()
	a.logger.Info("hubclient stopped")
	return err
}

// printNotifications writes notifications to w until ch is closed.
func printNotifications(w io.Writer, ch <-chan notify.Notification, showDebug bool) {
	for n := range ch {
		if n.Severity == notify.SeverityDebug && !showDebug {
			continue
		}
		fmt.Fprintln(w, formatNotification(n))
	}
}

func formatNotification(n notify.Notification) string {
	return fmt.Sprintf("%s %-7s %-24s %s",
		n.At.Format("15:04:05"), n.Severity.String(), n.Event, n.Message)
}
