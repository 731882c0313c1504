package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/hubclient/internal/auth"
	"github.com/rickgao/hubclient/internal/connection"
	"github.com/rickgao/hubclient/internal/hub"
	"github.com/rickgao/hubclient/internal/router"
)

// HubConfig builds the client configuration described by c.
func (c *Config) HubConfig() (hub.Config, error) {
	backoff, err := connection.NewBackoff(
		c.Connection.ReconnectStrategy,
		c.Connection.ReconnectDelay,
		c.Connection.ReconnectMaxDelay,
		c.Connection.ReconnectJitter,
	)
	if err != nil {
		return hub.Config{}, fmt.Errorf("connection.reconnect_strategy: %w", err)
	}

	creds, err := auth.LoadCredentials(c.Hub.Token, c.Hub.TokenFile)
	if err != nil {
		return hub.Config{}, fmt.Errorf("hub.token_file: %w", err)
	}
	var token string
	if creds != nil {
		token = creds.Token
	}

	return hub.Config{
		Connection: connection.ManagerConfig{
			Client: connection.ClientConfig{
				URL:          c.Hub.URL,
				Token:        token,
				DialTimeout:  c.Hub.DialTimeout,
				WriteTimeout: c.Hub.WriteTimeout,
				BufferSize:   c.Hub.BufferSize,
				StaleTimeout: c.Hub.StaleTimeout,
			},
			MaxReconnectAttempts: c.Connection.MaxReconnectAttempts,
			Backoff:              backoff,
			HeartbeatInterval:    c.Connection.HeartbeatInterval,
			SettleDelay:          c.Connection.SettleDelay,
			SendRate:             c.Connection.SendRate,
			SendBurst:            c.Connection.SendBurst,
		},
		Router:             router.RouterConfig{HistoryCapacity: c.History.Capacity},
		RequestTimeout:     c.Requests.Timeout,
		DefaultTopics:      append([]string(nil), c.Subscriptions.DefaultTopics...),
		NotificationBuffer: c.Notifications.BufferSize,
	}, nil
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Log.Level)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name onto a slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
