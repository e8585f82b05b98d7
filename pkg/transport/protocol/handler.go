package protocol

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Caller identifies the connection that issued an invocation.
type Caller interface {
	ID() string
}

// Handler serves one server-side hub method.
type Handler interface {
	Handle(ctx context.Context, caller Caller, args []json.RawMessage) (any, error)
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(ctx context.Context, caller Caller, args []json.RawMessage) (any, error)

// Handle implements Handler
func (f HandlerFunc) Handle(ctx context.Context, caller Caller, args []json.RawMessage) (any, error) {
	return f(ctx, caller, args)
}

// HandlerRegistry maps hub methods to handlers. Hub and method names are
// matched case-insensitively.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]Handler),
	}
}

func methodKey(hub, method string) string {
	return strings.ToLower(hub) + "." + strings.ToLower(method)
}

// Register binds handler to hub.method, replacing any previous handler.
func (r *HandlerRegistry) Register(hub, method string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[methodKey(hub, method)] = handler
}

// Get retrieves the handler for hub.method.
func (r *HandlerRegistry) Get(hub, method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[methodKey(hub, method)]
	return handler, ok
}
