package hub

import (
	"time"

	"github.com/rickgao/hubclient/internal/connection"
	"github.com/rickgao/hubclient/internal/correlation"
	"github.com/rickgao/hubclient/internal/router"
	"github.com/rickgao/hubclient/internal/subscription"
)

// Config holds configuration for a hub Client.
type Config struct {
	Connection         connection.ManagerConfig
	Router             router.RouterConfig
	RequestTimeout     time.Duration // Deadline for correlated requests. Default: 30s
	DefaultTopics      []string      // Subscribed after every successful open
	NotificationBuffer int           // Capacity of the Notifications channel. Default: 256
}

// DefaultConfig returns default configuration for url.
func DefaultConfig(url string) Config {
	conn := connection.DefaultManagerConfig()
	conn.Client.URL = url
	return Config{
		Connection:         conn,
		Router:             router.DefaultRouterConfig(),
		RequestTimeout:     correlation.DefaultTimeout,
		DefaultTopics:      append([]string(nil), subscription.DefaultTopics...),
		NotificationBuffer: 256,
	}
}

// Stats aggregates statistics from every component.
type Stats struct {
	Connection           connection.ManagerStats
	Router               router.RouterStats
	PendingRequests      int
	Requests             []correlation.Request // Outstanding requests, oldest first
	Subscriptions        []string
	DesiredTopics        []string // Requested by the caller, confirmed or not
	NotificationsSent    int64
	NotificationsDropped int64
}
