package hubconn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/HMasataka/hubconn/hub"
)

type ctxKey struct{}

type target struct {
	user  string
	count int
	ctx   context.Context
}

func (t *target) Plain(user string, count int) {
	t.user, t.count = user, count
}

func (t *target) WithContext(ctx context.Context, user string) error {
	t.ctx, t.user = ctx, user
	if user == "bad" {
		return errors.New("rejected")
	}
	return nil
}

func (t *target) Variadic(users ...string) {}

func (t *target) TwoResults() (int, error) { return 0, nil }

func args(t *testing.T, vs ...any) hub.Args {
	t.Helper()
	out := make(hub.Args, len(vs))
	for i, v := range vs {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		out[i] = data
	}
	return out
}

func TestResolveHandler_DecodesArguments(t *testing.T) {
	tg := &target{}
	fn, err := resolveHandler(tg, "Plain")
	if err != nil {
		t.Fatalf("resolveHandler() error = %v", err)
	}

	if err := fn(context.Background(), args(t, "alice", 3)); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if tg.user != "alice" || tg.count != 3 {
		t.Errorf("got (%q, %d), want (alice, 3)", tg.user, tg.count)
	}
}

func TestResolveHandler_MissingArgumentsAreZero(t *testing.T) {
	tg := &target{user: "x", count: 9}
	fn, _ := resolveHandler(tg, "Plain")

	_ = fn(context.Background(), args(t, "bob"))
	if tg.user != "bob" || tg.count != 0 {
		t.Errorf("got (%q, %d), want (bob, 0)", tg.user, tg.count)
	}
}

func TestResolveHandler_ContextAndError(t *testing.T) {
	tg := &target{}
	fn, err := resolveHandler(tg, "withContext")
	if err != nil {
		t.Fatalf("resolveHandler() error = %v", err)
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	if err := fn(ctx, args(t, "carol")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if tg.ctx.Value(ctxKey{}) != "v" {
		t.Error("handler did not receive the dispatch context")
	}
	if err := fn(ctx, args(t, "bad")); err == nil || err.Error() != "rejected" {
		t.Errorf("handler error = %v, want rejected", err)
	}
}

func TestResolveHandler_BadArgument(t *testing.T) {
	fn, _ := resolveHandler(&target{}, "Plain")

	err := fn(context.Background(), args(t, 1, "not a number"))
	if err == nil || !strings.Contains(err.Error(), "argument 0") {
		t.Errorf("handler error = %v, want an argument decode error", err)
	}
}

func TestResolveHandler_Rejects(t *testing.T) {
	for _, name := range []string{"Missing", "Variadic", "TwoResults"} {
		if _, err := resolveHandler(&target{}, name); err == nil {
			t.Errorf("resolveHandler(%q) error = nil", name)
		}
	}
}

type provider struct{ called bool }

func (p *provider) Handler(name string) (hub.HandlerFunc, bool) {
	if name != "custom" {
		return nil, false
	}
	return func(context.Context, hub.Args) error {
		p.called = true
		return nil
	}, true
}

func TestResolveHandler_Provider(t *testing.T) {
	p := &provider{}
	fn, err := resolveHandler(p, "custom")
	if err != nil {
		t.Fatalf("resolveHandler() error = %v", err)
	}
	_ = fn(context.Background(), nil)
	if !p.called {
		t.Error("provider handler not used")
	}
}

func TestOptionsNormalize(t *testing.T) {
	opts, err := Options{URL: " ws://x ", QueryString: "?a=1"}.normalize()
	if err != nil {
		t.Fatalf("normalize() error = %v", err)
	}
	if opts.URL != "ws://x" || opts.QueryString != "a=1" || opts.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("normalize() = %+v", opts)
	}
}

func TestGate_ResolvesOnce(t *testing.T) {
	g := newGate()
	g.resolve(true)
	g.resolve(false)

	ok, err := g.wait(context.Background())
	if err != nil || !ok {
		t.Errorf("wait() = %v, %v; want true, nil", ok, err)
	}

	pending := newGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pending.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("wait() error = %v, want context.Canceled", err)
	}
}
