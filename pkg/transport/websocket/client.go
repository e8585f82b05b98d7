package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/pkg/transport/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// ClientOptions represents websocket client options
type ClientOptions struct {
	URL              string
	QueryString      string
	Header           http.Header
	HandshakeTimeout time.Duration
	InvokeTimeout    time.Duration
	ReadBufferSize   int
	WriteBufferSize  int
	EventBufferSize  int
	Conn             ConnOptions
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		HandshakeTimeout: 10 * time.Second,
		InvokeTimeout:    30 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		EventBufferSize:  256,
		Conn:             DefaultConnOptions(),
	}
}

// session is one established websocket connection. A Client creates a new
// session on every Start.
type session struct {
	conn        *conn
	events      chan []protocol.Event
	init        chan struct{}
	initOnce    sync.Once
	torndown    chan struct{}
	established bool
	closed      bool
}

// Client is a Transport speaking the hub protocol over gorilla/websocket.
type Client struct {
	options ClientOptions
	logger  *logging.Logger
	codec   protocol.Codec

	mu       sync.Mutex
	state    transport.State
	hubs     map[string]*hubProxy
	hubNames []string
	sess     *session
	pending  map[string]chan *protocol.ServerFrame
	stopping bool

	onDisconnected func(error)
	onReconnecting func()
	onReconnected  func()
	onStateChanged func(transport.StateChange)
}

var _ transport.Transport = (*Client)(nil)

// NewClient creates a websocket transport for options.URL.
func NewClient(options ClientOptions, logger *logging.Logger) (*Client, error) {
	if options.URL == "" {
		return nil, ErrHandshake.WithDetails("empty url")
	}
	if _, err := url.Parse(options.URL); err != nil {
		return nil, ErrHandshake.WithDetails("invalid url").WithCause(err)
	}
	if _, err := url.ParseQuery(strings.TrimPrefix(options.QueryString, "?")); err != nil {
		return nil, ErrHandshake.WithDetails("invalid query string").WithCause(err)
	}

	d := DefaultClientOptions()
	if options.HandshakeTimeout <= 0 {
		options.HandshakeTimeout = d.HandshakeTimeout
	}
	if options.EventBufferSize <= 0 {
		options.EventBufferSize = d.EventBufferSize
	}
	options.Conn = options.Conn.withDefaults()
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		options: options,
		logger:  logger.WithComponent("websocket-client"),
		codec:   protocol.NewJSONCodec(),
		hubs:    make(map[string]*hubProxy),
		pending: make(map[string]chan *protocol.ServerFrame),
	}, nil
}

// CreateHubProxy implements transport.Transport
func (c *Client) CreateHubProxy(name string) transport.HubProxy {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := strings.ToLower(name)
	if p, ok := c.hubs[key]; ok {
		return p
	}
	p := &hubProxy{
		client:   c,
		name:     name,
		handlers: make(map[string]transport.EventHandler),
	}
	c.hubs[key] = p
	c.hubNames = append(c.hubNames, name)
	return p
}

// OnDisconnected implements transport.Transport
func (c *Client) OnDisconnected(fn func(error)) {
	c.mu.Lock()
	c.onDisconnected = fn
	c.mu.Unlock()
}

// OnReconnecting implements transport.Transport. The websocket client never
// reconnects by itself, so the hook is stored but not fired.
func (c *Client) OnReconnecting(fn func()) {
	c.mu.Lock()
	c.onReconnecting = fn
	c.mu.Unlock()
}

// OnReconnected implements transport.Transport; see OnReconnecting.
func (c *Client) OnReconnected(fn func()) {
	c.mu.Lock()
	c.onReconnected = fn
	c.mu.Unlock()
}

// OnStateChanged implements transport.Transport
func (c *Client) OnStateChanged(fn func(transport.StateChange)) {
	c.mu.Lock()
	c.onStateChanged = fn
	c.mu.Unlock()
}

// State implements transport.Transport
func (c *Client) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(next transport.State) {
	c.mu.Lock()
	old := c.state
	c.state = next
	hook := c.onStateChanged
	c.mu.Unlock()

	if hook != nil && old != next {
		hook(transport.StateChange{Old: old, New: next})
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.options.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	query := u.Query()
	extra, err := url.ParseQuery(strings.TrimPrefix(c.options.QueryString, "?"))
	if err != nil {
		return "", err
	}
	for k, vs := range extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	c.mu.Lock()
	hubs := make([]map[string]string, 0, len(c.hubNames))
	for _, name := range c.hubNames {
		hubs = append(hubs, map[string]string{"name": name})
	}
	c.mu.Unlock()

	data, err := json.Marshal(hubs)
	if err != nil {
		return "", err
	}
	query.Set("connectionData", string(data))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Start implements transport.Transport. It dials the server and returns once
// the server has acknowledged the session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case transport.StateConnected:
		c.mu.Unlock()
		return nil
	case transport.StateConnecting, transport.StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	c.setState(transport.StateConnecting)

	sess, err := c.dial(ctx)
	if err != nil {
		c.setState(transport.StateDisconnected)
		return err
	}

	if err := c.awaitInit(ctx, sess); err != nil {
		sess.conn.Close()
		<-sess.torndown
		c.setState(transport.StateDisconnected)
		return err
	}

	c.mu.Lock()
	if sess.closed {
		c.mu.Unlock()
		c.setState(transport.StateDisconnected)
		return ErrHandshake.WithDetails("connection closed during handshake")
	}
	sess.established = true
	c.sess = sess
	c.mu.Unlock()

	c.setState(transport.StateConnected)
	c.logger.Info("transport connected", "conn_id", sess.conn.ID())
	return nil
}

func (c *Client) dial(ctx context.Context) (*session, error) {
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, ErrHandshake.WithDetails("invalid endpoint").WithCause(err)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.options.HandshakeTimeout,
		ReadBufferSize:   c.options.ReadBufferSize,
		WriteBufferSize:  c.options.WriteBufferSize,
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, c.options.Header)
	if err != nil {
		if resp != nil {
			return nil, ErrHandshake.WithDetails(fmt.Sprintf("status %d", resp.StatusCode)).WithCause(err)
		}
		return nil, ErrHandshake.WithCause(err)
	}

	sess := &session{
		events:   make(chan []protocol.Event, c.options.EventBufferSize),
		init:     make(chan struct{}),
		torndown: make(chan struct{}),
	}
	sess.conn = newConn(xid.New().String(), ws, c.logger, c.options.Conn, func(data []byte) {
		c.handleMessage(sess, data)
	})
	sess.conn.start()

	go c.dispatchEvents(sess)
	go func() {
		<-sess.conn.Done()
		sess.conn.wait()
		c.teardown(sess, sess.conn.Err())
	}()

	return sess, nil
}

func (c *Client) awaitInit(ctx context.Context, sess *session) error {
	timer := time.NewTimer(c.options.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-sess.init:
		return nil
	case <-sess.conn.Done():
		return ErrHandshake.WithDetails("connection closed before init").WithCause(sess.conn.Err())
	case <-timer.C:
		return ErrHandshake.WithDetails("timed out waiting for init")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements transport.Transport
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	c.mu.Unlock()

	sess.conn.Close()

	select {
	case <-sess.torndown:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// teardown runs once per session after its pumps exit. Hooks fire before
// in-flight invocations are failed.
func (c *Client) teardown(sess *session, cause error) {
	defer close(sess.torndown)

	c.mu.Lock()
	sess.closed = true
	if !sess.established {
		c.mu.Unlock()
		return
	}
	if c.sess == sess {
		c.sess = nil
	}
	requested := c.stopping
	c.stopping = false
	pending := c.pending
	c.pending = make(map[string]chan *protocol.ServerFrame)
	onDisconnected := c.onDisconnected
	c.mu.Unlock()

	c.setState(transport.StateDisconnected)

	var err error
	if !requested {
		err = ErrConnectionClosed.WithCause(cause)
		c.logger.Warn("transport disconnected", "conn_id", sess.conn.ID(), "error", cause)
	} else {
		c.logger.Info("transport stopped", "conn_id", sess.conn.ID())
	}

	if onDisconnected != nil {
		onDisconnected(err)
	}

	for _, ch := range pending {
		close(ch)
	}
}

func (c *Client) handleMessage(sess *session, data []byte) {
	frame, err := c.codec.DecodeFrame(data)
	if err != nil {
		c.logger.Warn("failed to decode frame", "error", err, "size", len(data))
		return
	}

	if frame.IsInit() {
		sess.initOnce.Do(func() { close(sess.init) })
	}

	if frame.IsResult() {
		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		delete(c.pending, frame.ID)
		c.mu.Unlock()

		if ok {
			ch <- frame
		} else {
			c.logger.Debug("result for unknown invocation", "invocation_id", frame.ID)
		}
	}

	if len(frame.Messages) > 0 {
		select {
		case sess.events <- frame.Messages:
		case <-sess.conn.Done():
		}
	}
}

// dispatchEvents delivers inbound events in order, off the read pump, so a
// handler may invoke without stalling result delivery.
func (c *Client) dispatchEvents(sess *session) {
	for {
		select {
		case <-sess.conn.Done():
			return
		case events := <-sess.events:
			for _, ev := range events {
				c.deliver(ev)
			}
		}
	}
}

func (c *Client) deliver(ev protocol.Event) {
	c.mu.Lock()
	p, ok := c.hubs[strings.ToLower(ev.Hub)]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("event for unknown hub", "hub", ev.Hub, "event", ev.Method)
		return
	}

	handler, ok := p.handler(ev.Method)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "hub", ev.Hub, "event", ev.Method, "panic", r)
		}
	}()
	handler(ev.Args)
}

func (c *Client) invoke(ctx context.Context, hub, method string, args ...any) (json.RawMessage, error) {
	id := xid.New().String()
	inv, err := protocol.NewInvocation(id, hub, method, args...)
	if err != nil {
		return nil, err
	}
	data, err := c.codec.EncodeInvocation(inv)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sess := c.sess
	if sess == nil || c.state != transport.StateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	ch := make(chan *protocol.ServerFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := sess.conn.Send(ctx, data); err != nil {
		c.forget(id)
		return nil, err
	}

	var timeout <-chan time.Time
	if c.options.InvokeTimeout > 0 {
		timer := time.NewTimer(c.options.InvokeTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if frame.Error != "" {
			return nil, ErrInvocationFailed.WithDetails(frame.Error)
		}
		return frame.Result, nil
	case <-timeout:
		c.forget(id)
		return nil, ErrInvocationTimeout.WithDetails(hub + "." + method)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// hubProxy is the Client's handle on one hub.
type hubProxy struct {
	client   *Client
	name     string
	mu       sync.RWMutex
	handlers map[string]transport.EventHandler
}

func (p *hubProxy) Name() string {
	return p.name
}

func (p *hubProxy) On(event string, handler transport.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[strings.ToLower(event)] = handler
}

func (p *hubProxy) handler(event string) (transport.EventHandler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[strings.ToLower(event)]
	return h, ok
}

func (p *hubProxy) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return p.client.invoke(ctx, p.name, method, args...)
}
