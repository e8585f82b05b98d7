package hubconn_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/hubconn"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport"
)

// fakeTransport is a scripted transport. startFn decides the outcome of the
// n-th Start and may block.
type fakeTransport struct {
	mu      sync.Mutex
	state   transport.State
	starts  int
	stops   int
	startFn func(n int) error
	hubs    map[string]*fakeHub
	created []string

	onDisconnected func(error)
	onReconnecting func()
	onReconnected  func()
	onStateChanged func(transport.StateChange)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{hubs: make(map[string]*fakeHub)}
}

func (f *fakeTransport) factory() hubconn.TransportFactory {
	return func(hubconn.Options, *logging.Logger) (transport.Transport, error) {
		return f, nil
	}
}

func (f *fakeTransport) setStartFn(fn func(n int) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startFn = fn
}

func (f *fakeTransport) setState(next transport.State) {
	f.mu.Lock()
	old := f.state
	f.state = next
	hook := f.onStateChanged
	f.mu.Unlock()
	if hook != nil && old != next {
		hook(transport.StateChange{Old: old, New: next})
	}
}

func (f *fakeTransport) Start(context.Context) error {
	f.mu.Lock()
	f.starts++
	n := f.starts
	fn := f.startFn
	f.mu.Unlock()

	var err error
	if fn != nil {
		err = fn(n)
	}
	if err == nil {
		f.setState(transport.StateConnected)
	}
	return err
}

func (f *fakeTransport) Stop(context.Context) error {
	f.mu.Lock()
	f.stops++
	was := f.state
	hook := f.onDisconnected
	f.mu.Unlock()

	f.setState(transport.StateDisconnected)
	if was == transport.StateConnected && hook != nil {
		hook(nil)
	}
	return nil
}

// drop simulates an unexpected disconnect.
func (f *fakeTransport) drop(err error) {
	f.setState(transport.StateDisconnected)
	f.mu.Lock()
	hook := f.onDisconnected
	f.mu.Unlock()
	hook(err)
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeTransport) CreateHubProxy(name string) transport.HubProxy {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHub{name: name, t: f, handlers: make(map[string]transport.EventHandler)}
	f.hubs[name] = h
	f.created = append(f.created, name)
	return h
}

func (f *fakeTransport) hub(name string) *fakeHub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hubs[name]
}

func (f *fakeTransport) OnDisconnected(fn func(error)) { f.mu.Lock(); f.onDisconnected = fn; f.mu.Unlock() }
func (f *fakeTransport) OnReconnecting(fn func())      { f.mu.Lock(); f.onReconnecting = fn; f.mu.Unlock() }
func (f *fakeTransport) OnReconnected(fn func())       { f.mu.Lock(); f.onReconnected = fn; f.mu.Unlock() }
func (f *fakeTransport) OnStateChanged(fn func(transport.StateChange)) {
	f.mu.Lock()
	f.onStateChanged = fn
	f.mu.Unlock()
}

type fakeCall struct {
	method string
	args   []any
	state  transport.State
}

type fakeHub struct {
	name string
	t    *fakeTransport

	mu       sync.Mutex
	handlers map[string]transport.EventHandler
	calls    []fakeCall
	invoke   func(n int, method string) (json.RawMessage, error)
}

func (h *fakeHub) Name() string { return h.name }

func (h *fakeHub) On(event string, handler transport.EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = handler
}

func (h *fakeHub) Invoke(_ context.Context, method string, args ...any) (json.RawMessage, error) {
	state := h.t.State()
	h.mu.Lock()
	h.calls = append(h.calls, fakeCall{method: method, args: args, state: state})
	n := len(h.calls)
	fn := h.invoke
	h.mu.Unlock()

	if fn == nil {
		return json.RawMessage(`{"echo":"` + method + `"}`), nil
	}
	return fn(n, method)
}

func (h *fakeHub) setInvoke(fn func(n int, method string) (json.RawMessage, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invoke = fn
}

func (h *fakeHub) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHub) wired(event string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.handlers[event]
	return ok
}

func (h *fakeHub) fire(t *testing.T, event string, args ...any) {
	t.Helper()
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		raw[i] = data
	}
	h.mu.Lock()
	handler, ok := h.handlers[event]
	h.mu.Unlock()
	if !ok {
		t.Fatalf("event %q not wired on hub %q", event, h.name)
	}
	handler(raw)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
