// pkg/wire/envelope.go
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Reserved keys of the HTTP request envelope and WebSocket control frames.
const (
	KeyAction = "action"
	KeyTopic  = "topic"
	KeyAck    = "ack"
	KeyID     = "id"
	KeyError  = "error"
)

var errNotObject = errors.New("expected a JSON object")

// NewRequest builds the request envelope {"action": action, ...params}.
// params may be nil, a map or any value that marshals to a JSON object.
// The action key always wins over a parameter of the same name.
func NewRequest(action string, params any) ([]byte, error) {
	if action == "" {
		return nil, ErrEmptyAction
	}
	fields, err := objectFields(params)
	if err != nil {
		return nil, &EncodeError{Action: action, Err: err}
	}
	actionJSON, _ := json.Marshal(action)
	fields[KeyAction] = actionJSON

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, &EncodeError{Action: action, Err: err}
	}
	return body, nil
}

// objectFields marshals v and splits the resulting object into its fields.
func objectFields(v any) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if v == nil {
		return fields, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parameters must encode to a JSON object: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	return fields, nil
}

// Response is a parsed response envelope. Exactly one of Result or ErrorMessage is meaningful,
// selected by HasError.
type Response struct {
	Result       json.RawMessage // the full JSON object on success
	HasError     bool
	ErrorMessage string
}

// ParseResponse splits a response body into a success payload or a node error.
// It fails only when the body is not a JSON object.
func ParseResponse(body []byte) (Response, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Response{}, err
	}
	if fields == nil {
		return Response{}, errNotObject
	}
	rawErr, ok := fields[KeyError]
	if !ok {
		return Response{Result: json.RawMessage(body)}, nil
	}
	var msg string
	if err := json.Unmarshal(rawErr, &msg); err != nil {
		// Non-string error values are reported as their JSON text.
		msg = string(rawErr)
	}
	return Response{HasError: true, ErrorMessage: msg}, nil
}

// ControlFrame is an outbound WebSocket subscribe/update/unsubscribe request.
type ControlFrame struct {
	Action  string
	Topic   string
	Ack     bool
	ID      string         // optional correlation id echoed back in the ack
	Options map[string]any // merged into the top level of the frame
}

// MarshalJSON renders {"action", "topic", "ack", ["id"], ...options}. Control keys override
// option keys with the same name.
func (f ControlFrame) MarshalJSON() ([]byte, error) {
	fields, err := objectFields(f.Options)
	if err != nil {
		return nil, err
	}
	set := func(k string, v any) {
		b, _ := json.Marshal(v)
		fields[k] = b
	}
	set(KeyAction, f.Action)
	set(KeyTopic, f.Topic)
	set(KeyAck, f.Ack)
	if f.ID != "" {
		set(KeyID, f.ID)
	}
	return json.Marshal(fields)
}

// FrameKind classifies inbound WebSocket frames.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FramePush
	FrameAck
)

func (k FrameKind) String() string {
	switch k {
	case FramePush:
		return "push"
	case FrameAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Inbound is a parsed inbound frame. Unknown fields are tolerated and kept in Raw.
type Inbound struct {
	Kind    FrameKind
	Topic   string
	Ack     string // acknowledged action for ack frames
	ID      string
	Time    string
	Message json.RawMessage
	Raw     json.RawMessage
}

// ParseInbound classifies a frame: objects with an "ack" key are acknowledgements,
// objects with a "topic" key are push messages, anything else is unknown.
func ParseInbound(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Inbound{}, err
	}
	if fields == nil {
		return Inbound{}, errNotObject
	}
	in := Inbound{
		Topic:   stringField(fields[KeyTopic]),
		ID:      stringField(fields[KeyID]),
		Time:    stringField(fields["time"]),
		Message: fields["message"],
		Raw:     json.RawMessage(data),
	}
	if rawAck, ok := fields[KeyAck]; ok {
		in.Kind = FrameAck
		in.Ack = stringField(rawAck)
		return in, nil
	}
	if in.Topic != "" {
		in.Kind = FramePush
	}
	return in, nil
}

// stringField reads a JSON string, falling back to the literal text for numbers and other values.
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	t := string(bytes.TrimSpace(raw))
	if t == "null" {
		return ""
	}
	return t
}
