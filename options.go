package hubconn

import (
	"strings"
	"time"

	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/errors"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/pkg/transport/websocket"
	"github.com/HMasataka/hubconn/registry"
)

// DefaultReconnectDelay is the pause between reconnect attempts.
const DefaultReconnectDelay = time.Second

// Options configures one connection. They are captured by the first Connect
// and kept for the life of the Connection.
type Options struct {
	URL               string
	QueryString       string
	AttemptReconnects bool
	Groups            registry.Groups
	ReconnectDelay    time.Duration
}

func (o Options) normalize() (Options, error) {
	o.URL = strings.TrimSpace(o.URL)
	if o.URL == "" {
		return o, ErrInvalidOptions.WithDetails("url is required")
	}
	o.QueryString = strings.TrimPrefix(strings.TrimSpace(o.QueryString), "?")
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	return o, nil
}

// TransportFactory builds the transport for a connection.
type TransportFactory func(opts Options, logger *logging.Logger) (transport.Transport, error)

// WebSocketTransport returns a factory for the websocket transport; base
// supplies everything but the URL and query string.
func WebSocketTransport(base websocket.ClientOptions) TransportFactory {
	return func(opts Options, logger *logging.Logger) (transport.Transport, error) {
		base.URL = opts.URL
		base.QueryString = opts.QueryString
		client, err := websocket.NewClient(base, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Option configures a Connection
type Option func(*Connection)

// WithLogger sets the logger for the connection
func WithLogger(logger *logging.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithTransportFactory replaces the websocket transport
func WithTransportFactory(factory TransportFactory) Option {
	return func(c *Connection) {
		c.factory = factory
	}
}

// WithErrorHandler sets the handler that receives listener failures
func WithErrorHandler(handler errors.Handler) Option {
	return func(c *Connection) {
		c.errs = handler
	}
}
