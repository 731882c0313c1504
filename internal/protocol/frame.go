package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("frame has no type")
)

// Inbound frame tags.
const (
	TagConnectionEstablished   = "connection_established"
	TagSubscriptionConfirmed   = "subscription_confirmed"
	TagUnsubscriptionConfirmed = "unsubscription_confirmed"
	TagAgentActivity           = "agent_activity"
	TagWorkflowUpdate          = "workflow_update"
	TagSystemStatus            = "system_status"
	TagStats                   = "stats"
	TagAgentResponse           = "agent_response"
	TagAgentError              = "agent_error"
	TagWorkflowStarted         = "workflow_started"
	TagWorkflowProgress        = "workflow_progress"
	TagWorkflowCompleted       = "workflow_completed"
	TagWorkflowError           = "workflow_error"
	TagPong                    = "pong"
	TagError                   = "error"
)

// Frame is one decoded inbound message. Fields holds every key of the JSON
// object except "type".
type Frame struct {
	Tag    string
	Fields map[string]any
}

// Decode parses wire text into a Frame.
func Decode(data []byte) (Frame, error) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if obj == nil {
		return Frame{}, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}

	raw, ok := obj["type"]
	if !ok {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, ErrMissingType)
	}
	tag, ok := raw.(string)
	if !ok || tag == "" {
		return Frame{}, fmt.Errorf("%w: type must be a non-empty string, got %T", ErrMalformedFrame, raw)
	}
	delete(obj, "type")

	return Frame{Tag: tag, Fields: obj}, nil
}

// Object returns a shallow copy of key when it holds a JSON object.
func (f Frame) Object(key string) (map[string]any, bool) {
	m, ok := f.Fields[key].(map[string]any)
	if !ok {
		return nil, false
	}
	return maps.Clone(m), true
}

// Strings returns key as a list of strings. ok is false when the key is
// absent; err is set when the key is present but is not a list of strings.
func (f Frame) Strings(key string) (out []string, ok bool, err error) {
	raw, present := f.Fields[key]
	if !present || raw == nil {
		return nil, false, nil
	}
	list, isList := raw.([]any)
	if !isList {
		return nil, true, fmt.Errorf("field %q: want list of strings, got %T", key, raw)
	}
	out = make([]string, 0, len(list))
	for i, item := range list {
		s, isStr := item.(string)
		if !isStr {
			return nil, true, fmt.Errorf("field %q[%d]: want string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, true, nil
}

// Clone returns a copy of the field map.
func (f Frame) Clone() map[string]any {
	return maps.Clone(f.Fields)
}
