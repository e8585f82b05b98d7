package hubconn

import (
	"github.com/HMasataka/hubconn/internal/eventbus"
)

// Subscription is a handle on a lifecycle callback.
type Subscription struct {
	bus *eventbus.InMemoryBus
	id  string
}

// Unsubscribe stops further callbacks. It is safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.bus != nil {
		s.bus.Unsubscribe(s.id)
	}
}

func (c *Connection) subscribe(eventType eventbus.EventType, fn func(*eventbus.Event)) Subscription {
	return Subscription{bus: c.bus, id: c.bus.Subscribe(eventType, fn)}
}

// OnConnected calls fn after every successful connect, including the end of
// a reconnect.
func (c *Connection) OnConnected(fn func()) Subscription {
	return c.subscribe(eventbus.EventConnected, func(*eventbus.Event) { fn() })
}

// OnDisconnected calls fn when the connection drops. err is nil for a
// requested disconnect.
func (c *Connection) OnDisconnected(fn func(err error)) Subscription {
	return c.subscribe(eventbus.EventDisconnected, func(e *eventbus.Event) {
		err, _ := e.Data.(error)
		fn(err)
	})
}

// OnReconnecting calls fn when a reconnect starts.
func (c *Connection) OnReconnecting(fn func()) Subscription {
	return c.subscribe(eventbus.EventReconnecting, func(*eventbus.Event) { fn() })
}

// OnReconnected calls fn when a reconnect succeeds.
func (c *Connection) OnReconnected(fn func()) Subscription {
	return c.subscribe(eventbus.EventReconnected, func(*eventbus.Event) { fn() })
}

// OnStateChanged calls fn on every state transition.
func (c *Connection) OnStateChanged(fn func(StateChange)) Subscription {
	return c.subscribe(eventbus.EventStateChanged, func(e *eventbus.Event) {
		if change, ok := e.Data.(StateChange); ok {
			fn(change)
		}
	})
}
