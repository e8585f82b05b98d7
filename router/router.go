package router

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/HMasataka/hubconn/hub"
	"github.com/HMasataka/hubconn/logging"
)

// Router routes inbound hub events to the proxy of their hub.
type Router struct {
	mu      sync.RWMutex
	proxies map[string]*hub.Proxy
	logger  *logging.Logger

	routed  int64
	dropped int64
}

// NewRouter creates an empty router
func NewRouter(logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Router{
		proxies: make(map[string]*hub.Proxy),
		logger:  logger.WithComponent("router"),
	}
}

// Add registers p under its hub name, replacing any previous proxy.
func (r *Router) Add(p *hub.Proxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[p.Name()] = p
}

// Proxy returns the proxy for hub.
func (r *Router) Proxy(name string) (*hub.Proxy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.proxies[name]
	return p, ok
}

// Proxies returns every registered proxy.
func (r *Router) Proxies() []*hub.Proxy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*hub.Proxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		out = append(out, p)
	}
	return out
}

// Route dispatches event to the listeners of hubName. Events for unknown
// hubs are dropped. It returns the number of listeners that handled it.
func (r *Router) Route(ctx context.Context, hubName, event string, args hub.Args) int {
	p, ok := r.Proxy(hubName)
	if !ok {
		atomic.AddInt64(&r.dropped, 1)
		r.logger.Debug("dropping event for unknown hub", "hub", hubName, "event", event)
		return 0
	}
	atomic.AddInt64(&r.routed, 1)
	return p.Dispatch(ctx, event, args)
}

// Sink returns a hub.Sink feeding Route with ctx.
func (r *Router) Sink(ctx context.Context) hub.Sink {
	return func(hubName, event string, args hub.Args) {
		r.Route(ctx, hubName, event, args)
	}
}

// Routed returns the number of events handed to a proxy.
func (r *Router) Routed() int64 {
	return atomic.LoadInt64(&r.routed)
}

// Dropped returns the number of events dropped for unknown hubs.
func (r *Router) Dropped() int64 {
	return atomic.LoadInt64(&r.dropped)
}
