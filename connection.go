package hubconn

import (
	"context"
	"sync"
	"time"

	"github.com/HMasataka/hubconn/hub"
	"github.com/HMasataka/hubconn/internal/eventbus"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/errors"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/pkg/transport/websocket"
	"github.com/HMasataka/hubconn/registry"
	"github.com/HMasataka/hubconn/router"
)

const closeTimeout = 5 * time.Second

// Connection owns one transport and the hub proxies multiplexed over it.
type Connection struct {
	registry *registry.Registry
	logger   *logging.Logger
	errs     errors.Handler
	factory  TransportFactory
	bus      *eventbus.InMemoryBus
	stats    stats

	mu              sync.Mutex
	options         Options
	transport       transport.Transport
	router          *router.Router
	pending         []*Registration
	state           State
	errorConnecting bool
	reconnect       *gate
	lastReconnect   *gate
	droppedInLoop   bool
	starting        *gate
	requested       bool
	closed          bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a connection that builds its hubs from reg. Register calls
// made before the first Connect declare their hubs in reg, so a registry
// shared between connections also gains those hubs for any connection that
// has not connected yet.
func New(reg *registry.Registry, opts ...Option) *Connection {
	if reg == nil {
		reg = registry.New()
	}

	c := &Connection{
		registry: reg,
		factory:  WebSocketTransport(websocket.DefaultClientOptions()),
		bus:      eventbus.NewInMemoryBus(0),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.WithComponent("hubconn")
	if c.errs == nil {
		c.errs = errors.NewDefaultHandler(c.logger.Logger)
	}

	c.bus.OnPanic(func(event *eventbus.Event, recovered any) {
		c.logger.Error("lifecycle handler panicked", "event", event.Type, "panic", recovered)
	})
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Connect starts the connection and reports whether it is established. A
// failed attempt is reported as false, not as an error; errors are returned
// only for unusable options or a cancelled ctx.
//
// While a reconnect or another Connect is in flight, Connect waits for that
// attempt and returns its outcome. Options are taken from the first call.
func (c *Connection) Connect(ctx context.Context, opts Options) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrDisconnected.WithDetails("connection closed")
	}
	if g := c.reconnect; g != nil {
		c.mu.Unlock()
		return g.wait(ctx)
	}
	if g := c.starting; g != nil {
		c.mu.Unlock()
		return g.wait(ctx)
	}
	if err := c.ensureTransportLocked(opts); err != nil {
		c.mu.Unlock()
		return false, err
	}
	if c.transport.State() == transport.StateConnected {
		c.mu.Unlock()
		return true, nil
	}
	g := newGate()
	c.starting = g
	c.requested = false
	c.mu.Unlock()

	ok := c.start(ctx, false)

	c.mu.Lock()
	c.starting = nil
	c.mu.Unlock()
	g.resolve(ok)

	return ok, nil
}

// ensureTransportLocked builds the transport, the hub proxies and the
// deferred bindings on first use. c.mu must be held.
func (c *Connection) ensureTransportLocked(opts Options) error {
	if c.transport != nil {
		return nil
	}

	opts, err := opts.normalize()
	if err != nil {
		return err
	}

	t, err := c.factory(opts, c.logger)
	if err != nil {
		return ErrInvalidOptions.WithDetails("transport").WithCause(err)
	}

	r := router.NewRouter(c.logger)
	sink := r.Sink(c.ctx)
	for _, d := range c.registry.Declarations() {
		if !d.Groups.Matches(opts.Groups) {
			c.logger.Debug("skipping hub outside connection groups",
				"hub", d.HubName,
				"hub_groups", d.Groups.String(),
				"groups", opts.Groups.String(),
			)
			continue
		}

		p := hub.New(t.CreateHubProxy(d.HubName), hub.Options{
			Logger:       c.logger,
			ErrorHandler: c.errs,
			Sink:         sink,
		})
		for _, s := range d.Subscriptions {
			p.Wire(s.Event)
		}
		r.Add(p)
	}

	c.options = opts
	c.transport = t
	c.router = r

	pending := c.pending
	c.pending = nil
	for _, reg := range pending {
		if err := c.bind(r, opts.Groups, reg); err != nil {
			c.logger.Warn("deferred registration failed", "instance", typeName(reg.owner), "error", err)
		}
	}

	t.OnDisconnected(c.handleDisconnected)
	t.OnReconnecting(c.handleTransportReconnecting)
	t.OnReconnected(c.handleTransportReconnected)
	t.OnStateChanged(c.handleTransportStateChanged)

	c.logger.Info("connection configured",
		"url", opts.URL,
		"hubs", len(r.Proxies()),
		"attempt_reconnects", opts.AttemptReconnects,
	)
	return nil
}

// start runs one transport start. Attempts made by the reconnect loop keep
// the Reconnecting state on failure and leave the lifecycle notifications to
// the loop.
func (c *Connection) start(ctx context.Context, reconnecting bool) bool {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()

	if !reconnecting {
		c.setState(StateConnecting)
	}

	if err := t.Start(ctx); err != nil {
		c.mu.Lock()
		c.errorConnecting = true
		c.mu.Unlock()

		c.logger.Warn("connect attempt failed", "error", err, "reconnecting", reconnecting)
		if !reconnecting {
			c.setState(StateErrored)
		}
		return false
	}

	c.mu.Lock()
	c.errorConnecting = false
	c.mu.Unlock()

	c.setState(StateConnected)
	if !reconnecting {
		c.logger.Info("connected")
		c.publish(eventbus.EventConnected, nil)
	}
	return true
}

// handleDisconnected is the transport's disconnected hook. It opens the
// reconnect gate before returning, so calls failed by this disconnect find
// the gate.
func (c *Connection) handleDisconnected(err error) {
	c.mu.Lock()
	requested := c.requested || err == nil
	shouldReconnect := !c.closed && !requested && c.options.AttemptReconnects
	if !shouldReconnect || c.reconnect != nil {
		inReconnect := c.reconnect != nil
		if inReconnect {
			c.droppedInLoop = true
		}
		c.mu.Unlock()

		if inReconnect {
			c.setState(StateReconnecting)
			c.logger.Warn("disconnected during reconnect", "error", err)
			return
		}
		c.setState(StateDisconnected)
		c.logger.Info("disconnected", "requested", requested, "error", err)
		c.publish(eventbus.EventDisconnected, err)
		return
	}

	g := newGate()
	c.reconnect = g
	c.lastReconnect = g
	delay := c.options.ReconnectDelay
	c.wg.Add(1)
	c.mu.Unlock()

	c.setState(StateReconnecting)
	c.logger.Warn("connection lost, reconnecting", "error", err, "delay", delay)
	c.publish(eventbus.EventDisconnected, err)
	c.publish(eventbus.EventReconnecting, nil)

	go c.reconnectLoop(g, delay)
}

// reconnectLoop retries start every delay until it succeeds or the
// connection is closed.
func (c *Connection) reconnectLoop(g *gate, delay time.Duration) {
	defer c.wg.Done()

	for attempt := 1; ; attempt++ {
		if c.ctx.Err() != nil {
			c.abandonReconnect(g)
			return
		}

		c.stats.reconnectAttempts.Add(1)
		c.logger.Debug("reconnect attempt", "attempt", attempt)

		c.mu.Lock()
		c.droppedInLoop = false
		c.mu.Unlock()

		if c.start(c.ctx, true) && c.finishReconnect(g) {
			c.stats.reconnects.Add(1)
			g.resolve(true)

			c.logger.Info("reconnected", "attempts", attempt)
			c.publish(eventbus.EventReconnected, nil)
			c.publish(eventbus.EventConnected, nil)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-c.ctx.Done():
			timer.Stop()
			c.abandonReconnect(g)
			return
		case <-timer.C:
		}
	}
}

// finishReconnect closes the episode after a successful start. A transport
// that dropped again before the gate was cleared keeps the episode open.
func (c *Connection) finishReconnect(g *gate) bool {
	c.mu.Lock()
	if c.droppedInLoop || c.transport.State() != transport.StateConnected {
		c.droppedInLoop = false
		c.mu.Unlock()

		c.setState(StateReconnecting)
		c.logger.Warn("transport dropped right after reconnect, retrying")
		return false
	}
	if c.reconnect == g {
		c.reconnect = nil
	}
	c.mu.Unlock()
	return true
}

func (c *Connection) abandonReconnect(g *gate) {
	c.mu.Lock()
	if c.reconnect == g {
		c.reconnect = nil
	}
	c.mu.Unlock()

	g.resolve(false)
	c.setState(StateDisconnected)
	c.logger.Info("reconnect abandoned")
}

func (c *Connection) handleTransportReconnecting() {
	c.setState(StateReconnecting)
	c.publish(eventbus.EventReconnecting, nil)
}

func (c *Connection) handleTransportReconnected() {
	c.setState(StateConnected)
	c.publish(eventbus.EventReconnected, nil)
}

func (c *Connection) handleTransportStateChanged(change transport.StateChange) {
	c.logger.Debug("transport state changed", "old", change.Old.String(), "new", change.New.String())
}

// Disconnect stops the transport without triggering a reconnect and reports
// whether the connection is still up afterwards. A reconnect loop that is
// already running is not cancelled; use Close for that.
func (c *Connection) Disconnect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		return false, nil
	}
	c.requested = true
	c.mu.Unlock()

	err := t.Stop(ctx)

	c.mu.Lock()
	c.requested = false
	reconnecting := c.reconnect != nil
	c.mu.Unlock()

	if !reconnecting && t.State() != transport.StateConnected {
		c.setState(StateDisconnected)
	}
	return c.Connected(), err
}

// Close stops the transport and any reconnect loop. A reconnect gate that is
// still open resolves false. The connection cannot be used afterwards.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.requested = true
	t := c.transport
	c.mu.Unlock()

	c.cancel()

	var err error
	if t != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		err = t.Stop(ctx)
		cancel()
	}
	c.wg.Wait()

	c.setState(StateDisconnected)
	return err
}

// Connected reports whether the transport reports an established session.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	return t != nil && t.State() == transport.StateConnected
}

// ErrorConnecting reports whether the last connect attempt failed. It is
// cleared by the next successful connect or reconnect.
func (c *Connection) ErrorConnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorConnecting
}

// State returns the current connection state
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnecting reports whether a reconnect is in progress.
func (c *Connection) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect != nil
}

func (c *Connection) setState(next State) {
	c.mu.Lock()
	old := c.state
	c.state = next
	c.mu.Unlock()

	if old == next {
		return
	}
	c.logger.Debug("state changed", "old", old.String(), "new", next.String())
	c.publish(eventbus.EventStateChanged, StateChange{Old: old, New: next})
}

func (c *Connection) publish(eventType eventbus.EventType, data any) {
	c.bus.Publish(eventbus.NewEvent(eventType, "connection", data))
}
