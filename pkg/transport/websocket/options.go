package websocket

import (
	"net/http"

	"github.com/HMasataka/hubconn/internal/eventbus"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport/protocol"
)

// ServerOptions represents websocket server options
type ServerOptions struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
	Logger          *logging.Logger
	EventBus        eventbus.Bus
	Handlers        *protocol.HandlerRegistry
	Conn            ConnOptions
}

// ServerOption is a function that configures ServerOptions
type ServerOption func(*ServerOptions)

// WithLogger sets the logger for the server
func WithLogger(logger *logging.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// WithEventBus sets the event bus for the server
func WithEventBus(eventBus eventbus.Bus) ServerOption {
	return func(o *ServerOptions) {
		o.EventBus = eventBus
	}
}

// WithCheckOrigin sets the check origin function
func WithCheckOrigin(checkOrigin func(r *http.Request) bool) ServerOption {
	return func(o *ServerOptions) {
		o.CheckOrigin = checkOrigin
	}
}

// WithHandlers sets the hub method table served by the server
func WithHandlers(handlers *protocol.HandlerRegistry) ServerOption {
	return func(o *ServerOptions) {
		o.Handlers = handlers
	}
}

// WithConnOptions sets the pump options used for every peer
func WithConnOptions(conn ConnOptions) ServerOption {
	return func(o *ServerOptions) {
		o.Conn = conn
	}
}
