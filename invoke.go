package hubconn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/HMasataka/hubconn/hub"
)

// Invoke calls method on the named hub and returns the transport's raw
// result.
//
// A call made while a reconnect is running waits for it and fails with
// ErrDisconnected if the reconnect gives up. A call that fails because the
// connection dropped under it is re-issued once after a successful reconnect;
// the retry's outcome is returned as is.
func (c *Connection) Invoke(ctx context.Context, hubName, method string, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	r := c.router
	g := c.reconnect
	before := c.lastReconnect
	c.mu.Unlock()

	var p *hub.Proxy
	if r != nil {
		p, _ = r.Proxy(hubName)
	}
	if p == nil {
		return nil, ErrInvalidHub.WithDetails(hubName)
	}

	c.stats.invocations.Add(1)

	if g != nil {
		ok, err := g.wait(ctx)
		if err != nil {
			c.stats.failed.Add(1)
			return nil, err
		}
		if !ok {
			c.stats.failed.Add(1)
			return nil, ErrDisconnected.WithDetails(fmt.Sprintf("%s.%s", hubName, method))
		}
		return c.call(ctx, p, method, args)
	}

	result, err := p.Handle().Invoke(ctx, method, args...)
	if err == nil {
		return result, nil
	}

	// The disconnect hook opens a gate before in-flight calls fail, so a
	// drop under this call shows up as a new gate, possibly already resolved.
	c.mu.Lock()
	g = c.lastReconnect
	c.mu.Unlock()
	if g == nil || g == before {
		c.stats.failed.Add(1)
		return nil, err
	}

	c.logger.Debug("invocation interrupted by disconnect, waiting for reconnect",
		"hub", hubName,
		"method", method,
		"error", err,
	)
	ok, werr := g.wait(ctx)
	if werr != nil {
		c.stats.failed.Add(1)
		return nil, werr
	}
	if !ok {
		c.stats.failed.Add(1)
		return nil, err
	}

	c.stats.retried.Add(1)
	return c.call(ctx, p, method, args)
}

func (c *Connection) call(ctx context.Context, p *hub.Proxy, method string, args []any) (json.RawMessage, error) {
	result, err := p.Handle().Invoke(ctx, method, args...)
	if err != nil {
		c.stats.failed.Add(1)
	}
	return result, err
}

// InvokeAs calls Invoke and decodes the result into T. An empty or null
// result yields the zero value.
func InvokeAs[T any](ctx context.Context, c *Connection, hubName, method string, args ...any) (T, error) {
	var out T
	raw, err := c.Invoke(ctx, hubName, method, args...)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s.%s result: %w", hubName, method, err)
	}
	return out, nil
}
