package protocol

import (
	"encoding/json"
	"fmt"
)

// Outbound command tags.
const (
	CmdSubscribe     = "subscribe"
	CmdUnsubscribe   = "unsubscribe"
	CmdAgentProcess  = "agent_process"
	CmdWorkflowStart = "workflow_start"
	CmdGetStats      = "get_stats"
	CmdPing          = "ping"
)

// Command is an outbound frame. Fields are written next to "type" in a flat
// object; a "type" key in Fields is ignored.
type Command struct {
	Type   string
	Fields map[string]any
}

// Encode serializes a command to wire text.
func Encode(cmd Command) ([]byte, error) {
	if cmd.Type == "" {
		return nil, fmt.Errorf("encode command: %w", ErrMissingType)
	}

	obj := make(map[string]any, len(cmd.Fields)+1)
	for k, v := range cmd.Fields {
		obj[k] = v
	}
	obj["type"] = cmd.Type

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Type, err)
	}
	return data, nil
}

// Subscribe builds a subscribe command for topics.
func Subscribe(topics []string) Command {
	return Command{Type: CmdSubscribe, Fields: map[string]any{"events": nonNil(topics)}}
}

// Unsubscribe builds an unsubscribe command for topics.
func Unsubscribe(topics []string) Command {
	return Command{Type: CmdUnsubscribe, Fields: map[string]any{"events": nonNil(topics)}}
}

// AgentProcess builds a correlated agent request.
func AgentProcess(agentType, message, requestID string) Command {
	return Command{Type: CmdAgentProcess, Fields: map[string]any{
		"agent_type": agentType,
		"message":    message,
		"request_id": requestID,
	}}
}

// WorkflowStart builds a fire-and-forget workflow start.
func WorkflowStart(claimData map[string]any, requestID string) Command {
	if claimData == nil {
		claimData = map[string]any{}
	}
	return Command{Type: CmdWorkflowStart, Fields: map[string]any{
		"claim_data": claimData,
		"request_id": requestID,
	}}
}

// GetStats asks the hub for a stats frame.
func GetStats() Command {
	return Command{Type: CmdGetStats}
}

// Ping is the heartbeat frame.
func Ping() Command {
	return Command{Type: CmdPing}
}

// so an empty topic list encodes as [] rather than null
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
