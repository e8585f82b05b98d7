package protocol

import (
	"encoding/json"
	"fmt"
)

// Invocation is a client-to-server hub method call.
type Invocation struct {
	Hub    string            `json:"H"`
	Method string            `json:"M"`
	Args   []json.RawMessage `json:"A"`
	ID     string            `json:"I,omitempty"`
}

// NewInvocation marshals args into an invocation frame.
func NewInvocation(id, hub, method string, args ...any) (*Invocation, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal argument %d: %w", i, err)
		}
		raw = append(raw, data)
	}
	return &Invocation{
		Hub:    hub,
		Method: method,
		Args:   raw,
		ID:     id,
	}, nil
}

// Event is one hub event carried inside a server frame.
type Event struct {
	Hub    string            `json:"H"`
	Method string            `json:"M"`
	Args   []json.RawMessage `json:"A"`
}

// ServerFrame is a server-to-client frame. A frame carries either events
// (Messages), an invocation result (ID with Result or Error), or the init
// marker (Init == 1) sent once a session is established.
type ServerFrame struct {
	Cursor   string          `json:"C,omitempty"`
	Init     int             `json:"S,omitempty"`
	Messages []Event         `json:"M,omitempty"`
	ID       string          `json:"I,omitempty"`
	Result   json.RawMessage `json:"R,omitempty"`
	Error    string          `json:"E,omitempty"`
}

// IsInit reports whether f is the session init marker.
func (f *ServerFrame) IsInit() bool {
	return f.Init == 1
}

// IsResult reports whether f answers an invocation.
func (f *ServerFrame) IsResult() bool {
	return f.ID != ""
}

// Codec encodes and decodes hub frames.
type Codec interface {
	EncodeInvocation(inv *Invocation) ([]byte, error)
	DecodeInvocation(data []byte) (*Invocation, error)
	EncodeFrame(f *ServerFrame) ([]byte, error)
	DecodeFrame(data []byte) (*ServerFrame, error)
}

// JSONCodec implements Codec using JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// EncodeInvocation implements the Codec interface
func (c *JSONCodec) EncodeInvocation(inv *Invocation) ([]byte, error) {
	if inv.Args == nil {
		cp := *inv
		cp.Args = []json.RawMessage{}
		inv = &cp
	}
	return json.Marshal(inv)
}

// DecodeInvocation implements the Codec interface
func (c *JSONCodec) DecodeInvocation(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	if inv.Hub == "" || inv.Method == "" {
		return nil, fmt.Errorf("invocation missing hub or method")
	}
	return &inv, nil
}

// EncodeFrame implements the Codec interface
func (c *JSONCodec) EncodeFrame(f *ServerFrame) ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame implements the Codec interface
func (c *JSONCodec) DecodeFrame(data []byte) (*ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
