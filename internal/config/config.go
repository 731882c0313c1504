package config

import "time"

// Config is the root configuration for a hub client.
type Config struct {
	Hub           HubConfig           `yaml:"hub"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Requests      RequestsConfig      `yaml:"requests"`
	History       HistoryConfig       `yaml:"history"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Stats         StatsConfig         `yaml:"stats"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
}

// HubConfig holds the event hub endpoint and transport settings.
type HubConfig struct {
	URL          string        `yaml:"url"`
	Token        string        `yaml:"token"`      // Sent as "Authorization: Bearer <token>"
	TokenFile    string        `yaml:"token_file"` // Read when token is empty
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BufferSize   int           `yaml:"buffer_size"`
	StaleTimeout time.Duration `yaml:"stale_timeout"` // 0 disables stale detection
}

// ConnectionConfig holds Connection Manager settings.
type ConnectionConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectStrategy    string        `yaml:"reconnect_strategy"` // fixed | exponential
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectJitter      float64       `yaml:"reconnect_jitter"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	SettleDelay          time.Duration `yaml:"settle_delay"`
	SendRate             float64       `yaml:"send_rate"` // commands per second, 0 = unlimited
	SendBurst            int           `yaml:"send_burst"`
}

// SubscriptionsConfig holds the topics subscribed after every open.
type SubscriptionsConfig struct {
	DefaultTopics []string `yaml:"default_topics"`
}

// RequestsConfig holds correlated request settings.
type RequestsConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig holds bounded history settings.
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// NotificationsConfig holds notification channel settings.
type NotificationsConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// StatsConfig holds the get_stats poller settings.
type StatsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"` // 0 disables polling
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}
