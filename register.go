package hubconn

import (
	"context"
	"encoding/json"
	"reflect"
	"sync/atomic"

	"github.com/HMasataka/hubconn/hub"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/registry"
	"github.com/HMasataka/hubconn/router"
)

// Registration is returned by Register. Its Invoke is bound to the
// subscriber's hub.
type Registration struct {
	conn    *Connection
	owner   any
	hubName string
	bound   atomic.Bool
}

// Invoke calls method on the registration's hub.
func (r *Registration) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	return r.conn.Invoke(ctx, r.hubName, method, args...)
}

// Unregister removes every listener of the subscriber.
func (r *Registration) Unregister() error {
	return r.conn.Unregister(r.owner)
}

// Hub returns the transport proxy of the hub, or nil when the hub is not
// proxied on this connection.
func (r *Registration) Hub() transport.HubProxy {
	r.conn.mu.Lock()
	rt := r.conn.router
	r.conn.mu.Unlock()
	if rt == nil {
		return nil
	}
	p, ok := rt.Proxy(r.hubName)
	if !ok {
		return nil
	}
	return p.Handle()
}

// HubName returns the subscriber's hub name
func (r *Registration) HubName() string {
	return r.hubName
}

// Bound reports whether the subscriber's listeners are attached. A
// registration deferred until Connect becomes bound when Connect builds the
// hubs; one for a hub outside the connection's groups never does.
func (r *Registration) Bound() bool {
	return r.bound.Load()
}

func declarationOf(instance any) (registry.Declaration, error) {
	d, ok := instance.(registry.Declarer)
	if !ok || instance == nil {
		return registry.Declaration{}, ErrUndeclared.WithDetails(typeName(instance))
	}
	if !reflect.TypeOf(instance).Comparable() {
		return registry.Declaration{}, ErrUndeclared.WithDetails(typeName(instance) + " is not comparable")
	}
	decl := d.HubDeclaration()
	if decl.HubName == "" {
		return registry.Declaration{}, ErrUndeclared.WithDetails(typeName(instance) + " declares no hub")
	}
	return decl, nil
}

// Register binds the subscriber's declared events to its hub. Before the
// first Connect the subscriber is queued and bound when the hubs are built;
// its declaration is added to the registry so the hub gets proxied. The
// registry is the one passed to New and may be shared with other connections.
//
// Registering the same instance twice attaches its listeners twice; call
// Unregister first.
func (c *Connection) Register(instance any) (*Registration, error) {
	decl, err := declarationOf(instance)
	if err != nil {
		return nil, err
	}
	if len(decl.Subscriptions) == 0 {
		return nil, ErrNoSubscriptions.WithDetails(decl.HubName)
	}

	c.mu.Lock()
	if c.router == nil {
		if err := c.registry.Declare(decl); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		reg := &Registration{conn: c, owner: instance, hubName: decl.HubName}
		c.pending = append(c.pending, reg)
		c.mu.Unlock()

		c.logger.Debug("registration deferred until connect", "hub", decl.HubName, "instance", typeName(instance))
		return reg, nil
	}
	r := c.router
	groups := c.options.Groups
	c.mu.Unlock()

	reg := &Registration{conn: c, owner: instance, hubName: decl.HubName}
	if err := c.bind(r, groups, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// bind attaches the listeners of reg's owner to its hub proxy on r.
func (c *Connection) bind(r *router.Router, groups registry.Groups, reg *Registration) error {
	instance := reg.owner
	decl, err := declarationOf(instance)
	if err != nil {
		return err
	}

	if !decl.Groups.Matches(groups) {
		c.logger.Debug("hub outside connection groups, registration ignored",
			"hub", decl.HubName,
			"hub_groups", decl.Groups.String(),
			"groups", groups.String(),
		)
		return nil
	}

	p, ok := r.Proxy(decl.HubName)
	if !ok {
		return ErrInvalidHub.WithDetails(decl.HubName)
	}

	for _, sub := range decl.Subscriptions {
		fn, err := resolveHandler(instance, sub.Handler)
		if err != nil {
			c.logger.Warn("skipping subscription",
				"hub", decl.HubName,
				"event", sub.Event,
				"handler", sub.Handler,
				"error", err,
			)
			continue
		}
		p.Add(sub.Event, hub.Listener{Owner: instance, Handler: fn})
	}

	reg.bound.Store(true)
	return nil
}

// Unregister removes every listener owned by instance and drops it from the
// deferred queue.
func (c *Connection) Unregister(instance any) error {
	decl, err := declarationOf(instance)
	if err != nil {
		return err
	}

	c.mu.Lock()
	kept := c.pending[:0:0]
	for _, reg := range c.pending {
		if reg.owner != instance {
			kept = append(kept, reg)
		}
	}
	c.pending = kept
	r := c.router
	c.mu.Unlock()

	if r == nil {
		return nil
	}
	if p, ok := r.Proxy(decl.HubName); ok {
		removed := p.RemoveOwner(instance)
		c.logger.Debug("unregistered", "hub", decl.HubName, "instance", typeName(instance), "listeners", removed)
	}
	return nil
}
