package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Hub.URL == "" {
		return errors.New("hub.url is required")
	}
	u, err := url.Parse(c.Hub.URL)
	if err != nil {
		return fmt.Errorf("hub.url is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("hub.url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("hub.url must include a host")
	}
	if c.Hub.DialTimeout < 0 {
		return errors.New("hub.dial_timeout must be >= 0")
	}
	if c.Hub.BufferSize < 1 {
		return errors.New("hub.buffer_size must be >= 1")
	}
	if c.Hub.StaleTimeout < 0 {
		return errors.New("hub.stale_timeout must be >= 0")
	}
	if c.Hub.StaleTimeout > 0 && c.Hub.StaleTimeout < MinStaleTimeout {
		return fmt.Errorf("hub.stale_timeout must be 0 or >= %s", MinStaleTimeout)
	}

	if err := c.Connection.validate("connection"); err != nil {
		return err
	}

	for i, topic := range c.Subscriptions.DefaultTopics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("subscriptions.default_topics[%d] is empty", i)
		}
	}

	if c.Requests.Timeout <= 0 {
		return errors.New("requests.timeout must be > 0")
	}
	if c.History.Capacity < 1 {
		return errors.New("history.capacity must be >= 1")
	}
	if c.Notifications.BufferSize < 1 {
		return errors.New("notifications.buffer_size must be >= 1")
	}

	if c.Stats.PollInterval < 0 {
		return errors.New("stats.poll_interval must be >= 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (cc *ConnectionConfig) validate(prefix string) error {
	if cc.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%s.max_reconnect_attempts must be >= 0", prefix)
	}
	switch cc.ReconnectStrategy {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("%s.reconnect_strategy must be fixed or exponential, got %q", prefix, cc.ReconnectStrategy)
	}
	if cc.ReconnectDelay <= 0 {
		return fmt.Errorf("%s.reconnect_delay must be > 0", prefix)
	}
	if cc.ReconnectMaxDelay < cc.ReconnectDelay {
		return fmt.Errorf("%s.reconnect_max_delay (%v) cannot be less than reconnect_delay (%v)", prefix, cc.ReconnectMaxDelay, cc.ReconnectDelay)
	}
	if cc.ReconnectJitter < 0 || cc.ReconnectJitter > 1 {
		return fmt.Errorf("%s.reconnect_jitter must be between 0 and 1, got %v", prefix, cc.ReconnectJitter)
	}
	if cc.HeartbeatInterval < 0 {
		return fmt.Errorf("%s.heartbeat_interval must be >= 0", prefix)
	}
	if cc.SettleDelay < 0 {
		return fmt.Errorf("%s.settle_delay must be >= 0", prefix)
	}
	if cc.SendRate < 0 {
		return fmt.Errorf("%s.send_rate must be >= 0", prefix)
	}
	if cc.SendRate > 0 && cc.SendBurst < 1 {
		return fmt.Errorf("%s.send_burst must be >= 1 when send_rate is set", prefix)
	}
	return nil
}
