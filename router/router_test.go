package router_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/HMasataka/hubconn/hub"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/router"
)

type handle struct {
	name string
	on   map[string]transport.EventHandler
}

func (h *handle) Name() string                                { return h.name }
func (h *handle) On(event string, fn transport.EventHandler) { h.on[event] = fn }
func (h *handle) Invoke(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, nil
}

func TestRouter_Route(t *testing.T) {
	r := router.NewRouter(nil)
	chat := &handle{name: "chatHub", on: map[string]transport.EventHandler{}}
	p := hub.New(chat, hub.Options{Sink: r.Sink(context.Background())})
	r.Add(p)

	calls := 0
	p.Add("messageReceived", hub.Listener{Owner: 1, Handler: func(context.Context, hub.Args) error {
		calls++
		return nil
	}})

	chat.on["messageReceived"]([]json.RawMessage{json.RawMessage(`"hi"`)})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if r.Routed() != 1 {
		t.Errorf("Routed() = %d, want 1", r.Routed())
	}
}

func TestRouter_UnknownHubDropped(t *testing.T) {
	r := router.NewRouter(nil)

	if n := r.Route(context.Background(), "missing", "e", nil); n != 0 {
		t.Errorf("Route() = %d, want 0", n)
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", r.Dropped())
	}
	if _, ok := r.Proxy("missing"); ok {
		t.Error("Proxy(missing) ok = true")
	}
}
