package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/hubconn/internal/config"
	"github.com/HMasataka/hubconn/internal/eventbus"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport/protocol"
	"github.com/HMasataka/hubconn/pkg/transport/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const chatHub = "chatHub"

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewInMemoryBus(100)
	bus.Start(ctx)
	defer bus.Stop()

	bus.SubscribeAll(func(e *eventbus.Event) {
		logger.Debug("server event", "type", e.Type, "data", e.Data)
	})

	hubs := websocket.NewServer(
		websocket.WithLogger(logger),
		websocket.WithEventBus(bus),
		websocket.WithConnOptions(cfg.ClientOptions().Conn),
	)
	registerChat(hubs)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get(cfg.Server.Path, hubs.ServeHTTP)
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hubs.Stats())
	})
	r.Post("/hubs/{hub}/events/{event}", func(w http.ResponseWriter, r *http.Request) {
		var args []any
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			http.Error(w, "body must be a JSON array of arguments", http.StatusBadRequest)
			return
		}
		n, err := hubs.Broadcast(chi.URLParam(r, "hub"), chi.URLParam(r, "event"), args...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"clients": n})
	})
	r.Delete("/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !hubs.Drop(chi.URLParam(r, "id")) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		hubs.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("hub server listening", "addr", srv.Addr, "path", cfg.Server.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// registerChat serves chatHub.send(user, text) by broadcasting
// messageReceived(user, text) to every chat client.
func registerChat(hubs *websocket.Server) {
	hubs.Handle(chatHub, "send", func(ctx context.Context, caller protocol.Caller, args []json.RawMessage) (any, error) {
		logger := logging.FromContext(ctx)

		if len(args) != 2 {
			return nil, fmt.Errorf("send expects 2 arguments, got %d", len(args))
		}
		var user, text string
		if err := json.Unmarshal(args[0], &user); err != nil {
			return nil, fmt.Errorf("invalid user: %w", err)
		}
		if err := json.Unmarshal(args[1], &text); err != nil {
			return nil, fmt.Errorf("invalid text: %w", err)
		}

		n, err := hubs.Broadcast(chatHub, "messageReceived", user, text)
		if err != nil {
			return nil, err
		}
		logger.Info("message relayed", "user", user, "clients", n)
		return map[string]any{"delivered": n, "at": time.Now().UTC()}, nil
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
