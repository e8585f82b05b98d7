package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/errors"
	"github.com/HMasataka/hubconn/pkg/transport"
)

// ErrListenerFailed wraps an error or panic raised by a listener.
var ErrListenerFailed = errors.New(errors.ErrorTypeListener, "LISTENER_FAILED", "listener failed")

// Args holds the positional arguments of one inbound event.
type Args []json.RawMessage

// Len returns the number of arguments
func (a Args) Len() int {
	return len(a)
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("argument %d out of range (have %d)", i, len(a))
	}
	return json.Unmarshal(a[i], v)
}

// HandlerFunc handles one inbound event.
type HandlerFunc func(ctx context.Context, args Args) error

// Listener pairs a handler with the instance that owns it. Owner is compared
// by identity on removal.
type Listener struct {
	Owner   any
	Handler HandlerFunc
}

// Sink receives every event the proxy wires on the transport, before it is
// dispatched. A router uses it to take the inbound entry point.
type Sink func(hub, event string, args Args)

// Metrics is a snapshot of proxy counters
type Metrics struct {
	Listeners  int   `json:"listeners"`
	Dispatched int64 `json:"dispatched"`
	Failures   int64 `json:"failures"`
}

// Options configures a Proxy
type Options struct {
	Logger       *logging.Logger
	ErrorHandler errors.Handler
	Sink         Sink
}

// Proxy is the per-hub listener table sitting on one transport hub proxy.
type Proxy struct {
	name   string
	handle transport.HubProxy
	sink   Sink
	logger *logging.Logger
	errs   errors.Handler

	mu        sync.RWMutex
	listeners map[string][]Listener
	wired     map[string]struct{}

	dispatched int64
	failures   int64
}

// New creates a proxy for the hub behind handle.
func New(handle transport.HubProxy, opts Options) *Proxy {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithFields(map[string]any{"hub": handle.Name()})

	errs := opts.ErrorHandler
	if errs == nil {
		errs = errors.NewDefaultHandler(logger.Logger)
	}

	return &Proxy{
		name:      handle.Name(),
		handle:    handle,
		sink:      opts.Sink,
		logger:    logger,
		errs:      errs,
		listeners: make(map[string][]Listener),
		wired:     make(map[string]struct{}),
	}
}

// Name returns the hub name
func (p *Proxy) Name() string {
	return p.name
}

// Handle returns the transport hub proxy
func (p *Proxy) Handle() transport.HubProxy {
	return p.handle
}

// Wire subscribes event on the transport. Repeated calls are no-ops.
func (p *Proxy) Wire(event string) {
	p.mu.Lock()
	if _, ok := p.wired[event]; ok {
		p.mu.Unlock()
		return
	}
	p.wired[event] = struct{}{}
	p.mu.Unlock()

	p.handle.On(event, func(raw []json.RawMessage) {
		args := Args(raw)
		if p.sink != nil {
			p.sink(p.name, event, args)
			return
		}
		p.Dispatch(context.Background(), event, args)
	})
}

// Add appends l to the listeners of event. Adding the same owner twice
// yields two listeners.
func (p *Proxy) Add(event string, l Listener) {
	p.Wire(event)

	p.mu.Lock()
	p.listeners[event] = append(p.listeners[event], l)
	p.mu.Unlock()
}

// RemoveOwner removes every listener owned by owner and returns how many
// were removed.
func (p *Proxy) RemoveOwner(owner any) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for event, ls := range p.listeners {
		kept := ls[:0:0]
		for _, l := range ls {
			if l.Owner == owner {
				removed++
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(p.listeners, event)
		} else {
			p.listeners[event] = kept
		}
	}
	return removed
}

// Listeners returns the number of listeners on event.
func (p *Proxy) Listeners(event string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.listeners[event])
}

// Dispatch calls every listener of event in order and returns how many
// completed without error. A failing listener is reported and does not stop
// the rest.
func (p *Proxy) Dispatch(ctx context.Context, event string, args Args) int {
	p.mu.RLock()
	ls := make([]Listener, len(p.listeners[event]))
	copy(ls, p.listeners[event])
	p.mu.RUnlock()

	if len(ls) == 0 {
		p.logger.Debug("no listeners for event", "event", event)
		return 0
	}

	delivered := 0
	for _, l := range ls {
		if err := p.call(ctx, l, args); err != nil {
			atomic.AddInt64(&p.failures, 1)
			p.errs.Handle(ctx, ErrListenerFailed.WithDetails(fmt.Sprintf("%s.%s (%T)", p.name, event, l.Owner)).WithCause(err))
			continue
		}
		delivered++
	}
	atomic.AddInt64(&p.dispatched, 1)
	return delivered
}

func (p *Proxy) call(ctx context.Context, l Listener, args Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.Handler(ctx, args)
}

// Metrics returns a snapshot of proxy counters
func (p *Proxy) Metrics() Metrics {
	p.mu.RLock()
	n := 0
	for _, ls := range p.listeners {
		n += len(ls)
	}
	p.mu.RUnlock()

	return Metrics{
		Listeners:  n,
		Dispatched: atomic.LoadInt64(&p.dispatched),
		Failures:   atomic.LoadInt64(&p.failures),
	}
}
