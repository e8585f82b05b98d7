package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HMasataka/hubconn"
	"github.com/HMasataka/hubconn/internal/config"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport"
	"github.com/HMasataka/hubconn/registry"
)

// flakyTransport fails the first n starts, n = failures.
type flakyTransport struct {
	mu       sync.Mutex
	failures int
	starts   int
	state    transport.State
}

func (f *flakyTransport) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.starts <= f.failures {
		return errors.New("connection refused")
	}
	f.state = transport.StateConnected
	return nil
}

func (f *flakyTransport) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = transport.StateDisconnected
	return nil
}

func (f *flakyTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *flakyTransport) CreateHubProxy(name string) transport.HubProxy {
	return nopHub(name)
}

func (f *flakyTransport) OnDisconnected(func(error)) {}

func (f *flakyTransport) OnReconnecting(func()) {}

func (f *flakyTransport) OnReconnected(func()) {}

func (f *flakyTransport) OnStateChanged(func(transport.StateChange)) {}

type nopHub string

func (h nopHub) Name() string { return string(h) }

func (h nopHub) On(string, transport.EventHandler) {}

func (h nopHub) Invoke(context.Context, string, ...any) (json.RawMessage, error) {
	return nil, nil
}

func newFlakyConnection(t *testing.T, ft *flakyTransport) *hubconn.Connection {
	t.Helper()
	conn := hubconn.New(registry.New(),
		hubconn.WithLogger(logging.Discard()),
		hubconn.WithTransportFactory(func(hubconn.Options, *logging.Logger) (transport.Transport, error) {
			return ft, nil
		}),
	)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnect_RetriesFirstConnect(t *testing.T) {
	ft := &flakyTransport{failures: 2}
	conn := newFlakyConnection(t, ft)

	cfg := config.Default()
	cfg.Connection.ReconnectDelay = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := connect(ctx, conn, cfg, logging.Discard()); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if !conn.Connected() {
		t.Error("Connected() = false")
	}
	if ft.starts != 3 {
		t.Errorf("transport started %d times, want 3", ft.starts)
	}
}

func TestConnect_GivesUpWithoutReconnects(t *testing.T) {
	ft := &flakyTransport{failures: 1}
	conn := newFlakyConnection(t, ft)

	cfg := config.Default()
	cfg.Connection.AttemptReconnects = false

	if err := connect(context.Background(), conn, cfg, logging.Discard()); err == nil {
		t.Fatal("connect() error = nil, want failure")
	}
	if ft.starts != 1 {
		t.Errorf("transport started %d times, want 1", ft.starts)
	}
}

func TestConnect_StopsOnCancel(t *testing.T) {
	ft := &flakyTransport{failures: 1 << 30}
	conn := newFlakyConnection(t, ft)

	cfg := config.Default()
	cfg.Connection.ReconnectDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := connect(ctx, conn, cfg, logging.Discard()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("connect() error = %v, want deadline exceeded", err)
	}
}
