package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/HMasataka/hubconn/logging"
	"github.com/gorilla/websocket"
)

// ConnOptions tunes the read and write pumps of one websocket connection.
type ConnOptions struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultConnOptions returns default pump options
func DefaultConnOptions() ConnOptions {
	return ConnOptions{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 512 * 1024, // 512KB
		SendBufferSize: 256,
	}
}

func (o ConnOptions) withDefaults() ConnOptions {
	d := DefaultConnOptions()
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = d.SendBufferSize
	}
	return o
}

// conn runs the read and write pumps of one websocket. It is used on both
// ends: by the server for each peer and by the client for each session.
type conn struct {
	id        string
	ws        *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logging.Logger
	options   ConnOptions
	send      chan []byte
	onMessage func([]byte)

	mu     sync.Mutex
	closed bool
	err    error
	wg     sync.WaitGroup
}

func newConn(id string, ws *websocket.Conn, logger *logging.Logger, options ConnOptions, onMessage func([]byte)) *conn {
	ctx, cancel := context.WithCancel(context.Background())

	options = options.withDefaults()

	return &conn{
		id:        id,
		ws:        ws,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.WithFields(map[string]any{"conn_id": id}),
		options:   options,
		send:      make(chan []byte, options.SendBufferSize),
		onMessage: onMessage,
	}
}

// ID returns the connection id
func (c *conn) ID() string {
	return c.id
}

// Done is closed once the connection is shut down.
func (c *conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err returns the error that ended the connection, nil for a local close.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *conn) start() {
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
}

// Send queues message for the write pump without blocking.
func (c *conn) Send(ctx context.Context, message []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame and shuts the connection down.
func (c *conn) Close() error {
	return c.shutdown(nil, true)
}

// abort drops the socket without a close handshake; the peer observes an
// abnormal closure.
func (c *conn) abort() error {
	return c.shutdown(nil, false)
}

func (c *conn) fail(err error) {
	_ = c.shutdown(err, false)
}

func (c *conn) shutdown(cause error, graceful bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.err = cause
	c.mu.Unlock()

	if graceful {
		deadline := time.Now().Add(c.options.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	}

	c.cancel()

	if err := c.ws.Close(); err != nil {
		c.logger.Debug("error closing websocket connection", "error", err)
		return err
	}
	return nil
}

// wait blocks until both pumps have returned.
func (c *conn) wait() {
	c.wg.Wait()
}

// readPump pumps messages from the websocket connection
func (c *conn) readPump() {
	defer c.wg.Done()
	defer c.logger.Debug("read pump stopped")

	c.ws.SetReadLimit(c.options.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read error", "error", err)
			}
			c.fail(err)
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// writePump pumps messages to the websocket connection
func (c *conn) writePump() {
	defer c.wg.Done()
	defer c.logger.Debug("write pump stopped")

	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				c.fail(err)
				return
			}

			// Drain any queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				select {
				case msg := <-c.send:
					if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						c.logger.Warn("websocket write error", "error", err)
						c.fail(err)
						return
					}
				default:
				}
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("websocket ping error", "error", err)
				c.fail(err)
				return
			}
		}
	}
}
