// hubclient connects to the event hub and exposes the client API on the
// command line.
//
// Usage:
//
//	hubclient watch --config configs/hubclient.yaml
//	hubclient ask --agent intake "summarize claim C-1"
//	hubclient workflow --claim '{"claim_id":"C-1"}' --follow
//	hubclient subscribe audit billing
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rickgao/hubclient/internal/config"
	"github.com/rickgao/hubclient/internal/hub"
	"github.com/rickgao/hubclient/internal/metrics"
	"github.com/rickgao/hubclient/internal/version"
)

type globalFlags struct {
	configPath string
	url        string
	logLevel   string
	connect    time.Duration
}

func main() {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:   "hubclient",
		Short: "Client for the real-time event hub",
		Long: `hubclient keeps one WebSocket connection to the event hub, subscribes
to topics and prints agent activity, workflow updates and system status.

Configuration is read from a YAML file; ${VAR} references are expanded
from the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to config file (defaults apply when omitted)")
	pf.StringVar(&flags.url, "url", "", "hub url, overrides hub.url")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level, overrides log.level")
	pf.DurationVar(&flags.connect, "connect-timeout", 15*time.Second, "how long to wait for the first connection")

	rootCmd.AddCommand(
		watchCmd(&flags),
		askCmd(&flags),
		workflowCmd(&flags),
		subscribeCmd(&flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app is everything a subcommand needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *hub.Client
	registry *prometheus.Registry
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.LoadWithDefaults(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.url != "" {
		cfg.Hub.URL = flags.url
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	hubCfg, err := cfg.HubConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	opts := []hub.Option{hub.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, hub.WithMetrics(metrics.New(a.registry, cfg.Metrics.Namespace)))
	}

	a.client = hub.New(hubCfg, opts...)

	logger.Info("hubclient starting",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Hub.URL,
	)
	return a, nil
}

// connect starts the client and waits for the first open.
func (a *app) connect(ctx context.Context, timeout time.Duration) error {
	a.client.Connect()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.client.WaitConnected(waitCtx); err != nil {
		return fmt.Errorf("connect to %s: %w", a.cfg.Hub.URL, err)
	}
	return nil
}
