package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/hubclient/internal/connection"
	"github.com/rickgao/hubclient/internal/hub"
	"github.com/rickgao/hubclient/internal/version"
)

// statusSource is the part of hub.Client the health handler reads.
type statusSource interface {
	State() connection.State
	ReconnectAttempts() int
	Subscriptions() []string
	Stats() hub.Stats
}

// createHandler serves /health, /debug/stats and, when reg is non-nil, the
// Prometheus metrics path.
func createHandler(src statusSource, reg *prometheus.Registry, metricsPath string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := src.State()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Version,
			Components: make(map[string]any),
		}

		health.Components["connection"] = map[string]any{
			"state":              state.String(),
			"reconnect_attempts": src.ReconnectAttempts(),
		}
		health.Components["subscriptions"] = src.Subscriptions()

		switch state {
		case connection.StateConnected:
		case connection.StateConnecting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := src.Stats()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"state":                 stats.Connection.State.String(),
			"dials":                 stats.Connection.Dials,
			"dial_failures":         stats.Connection.DialFailures,
			"reconnects":            stats.Connection.Reconnects,
			"exhaustions":           stats.Connection.Exhaustions,
			"commands_sent":         stats.Connection.CommandsSent,
			"messages_received":     stats.Router.MessagesReceived,
			"messages_routed":       stats.Router.MessagesRouted,
			"classify_errors":       stats.Router.ClassifyErrors,
			"unknown_messages":      stats.Router.UnknownMessages,
			"pending_requests":      stats.PendingRequests,
			"requests":              stats.Requests,
			"subscriptions":         stats.Subscriptions,
			"desired_topics":        stats.DesiredTopics,
			"notifications_dropped": stats.NotificationsDropped,
		}); err != nil {
			logger.Debug("write stats response", "error", err)
		}
	})

	if reg != nil {
		mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	return mux
}
