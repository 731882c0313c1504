package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFieldType is returned by Classify when a known field has the wrong type.
var ErrFieldType = errors.New("field has wrong type")

// Event is the closed set of classified inbound frames. The router switches
// over the concrete types; Unknown carries any tag not listed here.
type Event interface {
	Tag() string
	isEvent()
}

// ConnectionEstablished is the hub's greeting after the handshake.
type ConnectionEstablished struct {
	ClientID string
	Message  string
}

// SubscriptionConfirmed lists the topics the hub acknowledged.
type SubscriptionConfirmed struct {
	Events []string
}

// UnsubscriptionConfirmed lists the topics the hub removed.
type UnsubscriptionConfirmed struct {
	Events []string
}

// AgentActivityEvent reports work performed by an agent. Empty strings mean
// the field was absent.
type AgentActivityEvent struct {
	AgentName string
	Activity  string
	Timestamp string
	Data      any
}

// WorkflowUpdateEvent reports a stage/status change of a claim workflow.
type WorkflowUpdateEvent struct {
	ClaimID   string
	Stage     string
	Status    string
	Message   string
	Progress  *float64
	Timestamp string
	Data      any
}

// SystemStatusEvent is a component health message.
type SystemStatusEvent struct {
	Level     string
	Component string
	Message   string
	Timestamp string
	Data      any
}

// StatsEvent carries the connection statistics snapshot.
type StatsEvent struct {
	Snapshot map[string]any
}

// AgentResponse answers a correlated agent_process request.
type AgentResponse struct {
	RequestID string
	AgentType string
	Response  string
}

// AgentError rejects a correlated agent_process request.
type AgentError struct {
	RequestID string
	AgentType string
	Error     string
}

// WorkflowStarted acknowledges a workflow_start command.
type WorkflowStarted struct {
	RequestID  string
	WorkflowID string
	ClaimID    string
	Message    string
}

// WorkflowProgress is a progress report for a started workflow.
type WorkflowProgress struct {
	RequestID  string
	WorkflowID string
	Stage      string
	Message    string
	Progress   *float64
}

// WorkflowCompleted is the final report for a workflow.
type WorkflowCompleted struct {
	RequestID  string
	WorkflowID string
	Message    string
	Result     any
}

// WorkflowError reports a failed workflow.
type WorkflowError struct {
	RequestID  string
	WorkflowID string
	Error      string
}

// Pong answers a ping.
type Pong struct {
	Timestamp string
}

// ServerError is a protocol-level error frame from the hub.
type ServerError struct {
	Code    string
	Message string
}

// Unknown preserves a frame whose tag is not recognized.
type Unknown struct {
	Frame Frame
}

func (ConnectionEstablished) Tag() string   { return TagConnectionEstablished }
func (SubscriptionConfirmed) Tag() string   { return TagSubscriptionConfirmed }
func (UnsubscriptionConfirmed) Tag() string { return TagUnsubscriptionConfirmed }
func (AgentActivityEvent) Tag() string      { return TagAgentActivity }
func (WorkflowUpdateEvent) Tag() string     { return TagWorkflowUpdate }
func (SystemStatusEvent) Tag() string       { return TagSystemStatus }
func (StatsEvent) Tag() string              { return TagStats }
func (AgentResponse) Tag() string           { return TagAgentResponse }
func (AgentError) Tag() string              { return TagAgentError }
func (WorkflowStarted) Tag() string         { return TagWorkflowStarted }
func (WorkflowProgress) Tag() string        { return TagWorkflowProgress }
func (WorkflowCompleted) Tag() string       { return TagWorkflowCompleted }
func (WorkflowError) Tag() string           { return TagWorkflowError }
func (Pong) Tag() string                    { return TagPong }
func (ServerError) Tag() string             { return TagError }
func (u Unknown) Tag() string               { return u.Frame.Tag }

func (ConnectionEstablished) isEvent()   {}
func (SubscriptionConfirmed) isEvent()   {}
func (UnsubscriptionConfirmed) isEvent() {}
func (AgentActivityEvent) isEvent()      {}
func (WorkflowUpdateEvent) isEvent()     {}
func (SystemStatusEvent) isEvent()       {}
func (StatsEvent) isEvent()              {}
func (AgentResponse) isEvent()           {}
func (AgentError) isEvent()              {}
func (WorkflowStarted) isEvent()         {}
func (WorkflowProgress) isEvent()        {}
func (WorkflowCompleted) isEvent()       {}
func (WorkflowError) isEvent()           {}
func (Pong) isEvent()                    {}
func (ServerError) isEvent()             {}
func (Unknown) isEvent()                 {}

// Classify maps a decoded frame onto its Event variant. It fails only when a
// known field is present with the wrong type.
func Classify(f Frame) (Event, error) {
	r := &fieldReader{f: f}
	var ev Event

	switch f.Tag {
	case TagConnectionEstablished:
		ev = ConnectionEstablished{
			ClientID: r.str("client_id"),
			Message:  r.str("message"),
		}

	case TagSubscriptionConfirmed:
		ev = SubscriptionConfirmed{Events: r.strs("events")}

	case TagUnsubscriptionConfirmed:
		ev = UnsubscriptionConfirmed{Events: r.strs("events")}

	case TagAgentActivity:
		ev = AgentActivityEvent{
			AgentName: r.str("agent_name"),
			Activity:  r.str("activity"),
			Timestamp: r.str("timestamp"),
			Data:      f.Fields["data"],
		}

	case TagWorkflowUpdate:
		ev = WorkflowUpdateEvent{
			ClaimID:   r.str("claim_id"),
			Stage:     r.str("stage"),
			Status:    r.str("status"),
			Message:   r.str("message"),
			Progress:  r.num("progress"),
			Timestamp: r.str("timestamp"),
			Data:      f.Fields["data"],
		}

	case TagSystemStatus:
		ev = SystemStatusEvent{
			Level:     r.str("level"),
			Component: r.str("component"),
			Message:   r.str("message"),
			Timestamp: r.str("timestamp"),
			Data:      f.Fields["data"],
		}

	case TagStats:
		snapshot, ok := f.Object("data")
		if !ok {
			snapshot = f.Clone()
		}
		ev = StatsEvent{Snapshot: snapshot}

	case TagAgentResponse:
		ev = AgentResponse{
			RequestID: r.str("request_id"),
			AgentType: r.str("agent_type"),
			Response:  responseText(f),
		}

	case TagAgentError:
		msg := r.str("error")
		if msg == "" {
			msg = r.str("message")
		}
		ev = AgentError{
			RequestID: r.str("request_id"),
			AgentType: r.str("agent_type"),
			Error:     msg,
		}

	case TagWorkflowStarted:
		ev = WorkflowStarted{
			RequestID:  r.str("request_id"),
			WorkflowID: r.str("workflow_id"),
			ClaimID:    r.str("claim_id"),
			Message:    r.str("message"),
		}

	case TagWorkflowProgress:
		ev = WorkflowProgress{
			RequestID:  r.str("request_id"),
			WorkflowID: r.str("workflow_id"),
			Stage:      r.str("stage"),
			Message:    r.str("message"),
			Progress:   r.num("progress"),
		}

	case TagWorkflowCompleted:
		ev = WorkflowCompleted{
			RequestID:  r.str("request_id"),
			WorkflowID: r.str("workflow_id"),
			Message:    r.str("message"),
			Result:     f.Fields["result"],
		}

	case TagWorkflowError:
		msg := r.str("error")
		if msg == "" {
			msg = r.str("message")
		}
		ev = WorkflowError{
			RequestID:  r.str("request_id"),
			WorkflowID: r.str("workflow_id"),
			Error:      msg,
		}

	case TagPong:
		ev = Pong{Timestamp: r.str("timestamp")}

	case TagError:
		ev = ServerError{
			Code:    r.str("code"),
			Message: r.str("message"),
		}

	default:
		ev = Unknown{Frame: Frame{Tag: f.Tag, Fields: f.Clone()}}
	}

	if r.err != nil {
		return nil, fmt.Errorf("classify %s: %w", f.Tag, r.err)
	}
	return ev, nil
}

// responseText picks the answer of an agent_response frame: response, then
// result, then message, then the JSON of data.
func responseText(f Frame) string {
	for _, key := range []string{"response", "result", "message"} {
		v, ok := f.Fields[key]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr {
			return s
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	if v, ok := f.Fields["data"]; ok && v != nil {
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return ""
}

// fieldReader extracts typed fields and keeps the first mismatch.
type fieldReader struct {
	f   Frame
	err error
}

func (r *fieldReader) str(key string) string {
	raw, ok := r.f.Fields[key]
	if !ok || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		r.fail(fmt.Errorf("%w: %q is %T, want string", ErrFieldType, key, raw))
		return ""
	}
	return s
}

func (r *fieldReader) num(key string) *float64 {
	raw, ok := r.f.Fields[key]
	if !ok || raw == nil {
		return nil
	}
	n, ok := raw.(float64)
	if !ok {
		r.fail(fmt.Errorf("%w: %q is %T, want number", ErrFieldType, key, raw))
		return nil
	}
	return &n
}

func (r *fieldReader) strs(key string) []string {
	out, _, err := r.f.Strings(key)
	if err != nil {
		r.fail(fmt.Errorf("%w: %v", ErrFieldType, err))
		return nil
	}
	return out
}

func (r *fieldReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
