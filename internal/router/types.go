package router

import "time"

// RouterConfig holds configuration for the Event Router.
type RouterConfig struct {
	HistoryCapacity int // Records kept per category. Default: 50
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		HistoryCapacity: 50,
	}
}

// Defaults for fields missing from inbound frames.
const (
	UnknownAgent    = "Unknown Agent"
	UnknownActivity = "Unknown activity"
	UnknownValue    = "unknown"
)

// TimestampLayout is the ISO-8601 form used for records stamped locally.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Categories, used as metric labels.
const (
	CategoryAgentActivity  = "agent_activity"
	CategoryWorkflowUpdate = "workflow_update"
	CategorySystemStatus   = "system_status"
)

// StatusLevel is the severity carried by a system_status frame.
type StatusLevel string

const (
	LevelInfo    StatusLevel = "info"
	LevelWarning StatusLevel = "warning"
	LevelError   StatusLevel = "error"
)

// ParseLevel maps s onto a StatusLevel. Anything unrecognized is info.
func ParseLevel(s string) StatusLevel {
	switch StatusLevel(s) {
	case LevelWarning:
		return LevelWarning
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// AgentActivity is one agent_activity record.
type AgentActivity struct {
	ID        string
	Timestamp string
	AgentName string
	Activity  string
	Data      any
}

// WorkflowUpdate is one workflow_update record.
type WorkflowUpdate struct {
	ID        string
	Timestamp string
	ClaimID   string
	Stage     string
	Status    string
	Message   string
	Progress  *float64
	Data      any
}

// SystemStatus is one system_status record.
type SystemStatus struct {
	ID        string
	Timestamp string
	Level     StatusLevel
	Component string
	Message   string
	Data      any
}

// ConnectionStats is the latest stats snapshot from the hub. It is replaced
// wholesale by each stats frame.
type ConnectionStats struct {
	Fields     map[string]any
	ReceivedAt time.Time
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ClassifyErrors   int64
	UnknownMessages  int64
	UnmatchedReplies int64
	AgentActivity    HistoryStats
	WorkflowUpdate   HistoryStats
	SystemStatus     HistoryStats
}
