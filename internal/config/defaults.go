package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultURL                  = "ws://localhost:8000/ws"
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultBufferSize           = 1000
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectStrategy    = "fixed"
	DefaultReconnectDelay       = 3 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultReconnectJitter      = 0.2
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultSettleDelay          = 1 * time.Second
	DefaultSendBurst            = 10
	DefaultRequestTimeout       = 30 * time.Second
	DefaultHistoryCapacity      = 50
	DefaultNotificationBuffer   = 256
	DefaultMetricsPort          = 9090
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "hubclient"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// MinStaleTimeout is the smallest non-zero hub.stale_timeout.
const MinStaleTimeout = time.Second

// DefaultTopics are subscribed after every open when the file names none.
var DefaultTopics = []string{"agent_activity", "workflow_updates", "system_status"}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	// Hub defaults
	if c.Hub.URL == "" {
		c.Hub.URL = DefaultURL
	}
	if c.Hub.DialTimeout == 0 {
		c.Hub.DialTimeout = DefaultDialTimeout
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = DefaultWriteTimeout
	}
	if c.Hub.BufferSize == 0 {
		c.Hub.BufferSize = DefaultBufferSize
	}

	// Connection defaults
	if c.Connection.MaxReconnectAttempts == 0 {
		c.Connection.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connection.ReconnectStrategy == "" {
		c.Connection.ReconnectStrategy = DefaultReconnectStrategy
	}
	if c.Connection.ReconnectDelay == 0 {
		c.Connection.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.ReconnectJitter == 0 && c.Connection.ReconnectStrategy == "exponential" {
		c.Connection.ReconnectJitter = DefaultReconnectJitter
	}
	if c.Connection.HeartbeatInterval == 0 {
		c.Connection.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Connection.SettleDelay == 0 {
		c.Connection.SettleDelay = DefaultSettleDelay
	}
	if c.Connection.SendRate > 0 && c.Connection.SendBurst == 0 {
		c.Connection.SendBurst = DefaultSendBurst
	}

	// Subscriptions defaults
	if len(c.Subscriptions.DefaultTopics) == 0 {
		c.Subscriptions.DefaultTopics = append([]string(nil), DefaultTopics...)
	}

	if c.Requests.Timeout == 0 {
		c.Requests.Timeout = DefaultRequestTimeout
	}
	if c.History.Capacity == 0 {
		c.History.Capacity = DefaultHistoryCapacity
	}
	if c.Notifications.BufferSize == 0 {
		c.Notifications.BufferSize = DefaultNotificationBuffer
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
