package hubconn

import (
	"context"
	"sync"
)

// gate is a one-shot broadcast of a connect outcome. Any number of callers
// may wait on it; it resolves once.
type gate struct {
	done chan struct{}
	once sync.Once
	ok   bool
}

func newGate() *gate {
	return &gate{done: make(chan struct{})}
}

func (g *gate) resolve(ok bool) {
	g.once.Do(func() {
		g.ok = ok
		close(g.done)
	})
}

func (g *gate) wait(ctx context.Context) (bool, error) {
	select {
	case <-g.done:
		return g.ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
