// Package transport defines the contract between the connection runtime and
// the physical connection that carries hub traffic.
package transport

import (
	"context"
	"encoding/json"
)

// State is the transport-reported connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange describes a transition reported by the transport.
type StateChange struct {
	Old State
	New State
}

// EventHandler receives the positional arguments of one inbound hub event.
type EventHandler func(args []json.RawMessage)

// HubProxy is the transport's handle on one hub channel.
type HubProxy interface {
	Name() string

	// On registers the raw callback for an inbound event. Registering the
	// same event twice replaces the previous callback.
	On(event string, handler EventHandler)

	// Invoke calls a remote hub method and returns its raw result.
	Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error)
}

// Transport is one physical connection multiplexing hub channels.
//
// On an unexpected drop an implementation fires the state-changed and
// disconnected hooks before it fails in-flight invocations.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() State

	// CreateHubProxy returns the proxy for name. Proxies must be created
	// before Start so the server learns about every hub at handshake.
	CreateHubProxy(name string) HubProxy

	// OnDisconnected fires when the session ends; err is nil when Stop
	// requested it.
	OnDisconnected(func(err error))
	OnReconnecting(func())
	OnReconnected(func())
	OnStateChanged(func(StateChange))
}
