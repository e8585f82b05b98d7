package eventbus

import (
	"context"
	"sync"
)

// Handler represents an event handler function
type Handler func(event *Event)

// PanicHandler receives the value recovered from a panicking handler.
type PanicHandler func(event *Event, recovered any)

// Bus represents an event bus
type Bus interface {
	// Publish publishes an event to all subscribers
	Publish(event *Event)

	// PublishAsync publishes an event asynchronously
	PublishAsync(event *Event)

	// Subscribe subscribes to events of a specific type
	Subscribe(eventType EventType, handler Handler) string

	// SubscribeAll subscribes to all events
	SubscribeAll(handler Handler) string

	// Unsubscribe removes a subscription
	Unsubscribe(id string)

	// Start starts the event bus
	Start(ctx context.Context)

	// Stop stops the event bus
	Stop()
}

// subscription represents a single subscription
type subscription struct {
	id        string
	eventType EventType
	handler   Handler
}

// InMemoryBus is an in-memory implementation of the event bus
type InMemoryBus struct {
	subscribers map[EventType][]*subscription
	allHandlers []*subscription
	onPanic     PanicHandler
	mu          sync.RWMutex
	eventChan   chan *Event
	dropped     int64
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewInMemoryBus creates a new in-memory event bus
func NewInMemoryBus(bufferSize int) *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[EventType][]*subscription),
		allHandlers: make([]*subscription, 0),
		eventChan:   make(chan *Event, bufferSize),
	}
}

// OnPanic sets the callback for panics raised by handlers. Without one,
// panics are recovered and dropped.
func (b *InMemoryBus) OnPanic(fn PanicHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = fn
}

// Publish publishes an event synchronously. Handlers run outside the lock on
// a snapshot, so a handler may subscribe or unsubscribe.
func (b *InMemoryBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.allHandlers))
	for _, sub := range b.subscribers[event.Type] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.allHandlers {
		handlers = append(handlers, sub.handler)
	}
	onPanic := b.onPanic
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, event, onPanic)
	}
}

func (b *InMemoryBus) call(h Handler, event *Event, onPanic PanicHandler) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(event, r)
		}
	}()
	h(event)
}

// PublishAsync publishes an event asynchronously. Events are dropped when
// the buffer is full.
func (b *InMemoryBus) PublishAsync(event *Event) {
	select {
	case b.eventChan <- event:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
	}
}

// Dropped returns the number of async events dropped on a full buffer.
func (b *InMemoryBus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Subscribe subscribes to events of a specific type
func (b *InMemoryBus) Subscribe(eventType EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:        generateID(),
		eventType: eventType,
		handler:   handler,
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	return sub.id
}

// SubscribeAll subscribes to all events
func (b *InMemoryBus) SubscribeAll(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      generateID(),
		handler: handler,
	}

	b.allHandlers = append(b.allHandlers, sub)
	return sub.id
}

// Unsubscribe removes a subscription
func (b *InMemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}

	for i, sub := range b.allHandlers {
		if sub.id == id {
			b.allHandlers = append(b.allHandlers[:i:i], b.allHandlers[i+1:]...)
			return
		}
	}
}

// Start starts the event bus
func (b *InMemoryBus) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.processEvents()
}

// Stop stops the event bus. Queued async events are discarded.
func (b *InMemoryBus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// processEvents processes events from the channel
func (b *InMemoryBus) processEvents() {
	defer b.wg.Done()

	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			if event != nil {
				b.Publish(event)
			}
		}
	}
}
