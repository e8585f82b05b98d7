package hubconn

import "sync/atomic"

type stats struct {
	invocations       atomic.Int64
	retried           atomic.Int64
	failed            atomic.Int64
	reconnectAttempts atomic.Int64
	reconnects        atomic.Int64
}

// Stats is a snapshot of connection counters
type Stats struct {
	Hubs              int   `json:"hubs"`
	Listeners         int   `json:"listeners"`
	Invocations       int64 `json:"invocations"`
	Retried           int64 `json:"retried"`
	Failed            int64 `json:"failed"`
	EventsRouted      int64 `json:"events_routed"`
	EventsDropped     int64 `json:"events_dropped"`
	ListenerFailures  int64 `json:"listener_failures"`
	ReconnectAttempts int64 `json:"reconnect_attempts"`
	Reconnects        int64 `json:"reconnects"`
}

// Stats returns a snapshot of connection counters
func (c *Connection) Stats() Stats {
	s := Stats{
		Invocations:       c.stats.invocations.Load(),
		Retried:           c.stats.retried.Load(),
		Failed:            c.stats.failed.Load(),
		ReconnectAttempts: c.stats.reconnectAttempts.Load(),
		Reconnects:        c.stats.reconnects.Load(),
	}

	c.mu.Lock()
	r := c.router
	c.mu.Unlock()
	if r == nil {
		return s
	}

	s.EventsRouted = r.Routed()
	s.EventsDropped = r.Dropped()
	for _, p := range r.Proxies() {
		m := p.Metrics()
		s.Hubs++
		s.Listeners += m.Listeners
		s.ListenerFailures += m.Failures
	}
	return s
}
