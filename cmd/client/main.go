package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/HMasataka/hubconn"
	"github.com/HMasataka/hubconn/internal/config"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/registry"
)

// chatSubscriber prints every message relayed by chatHub.
type chatSubscriber struct {
	self string
}

func (s *chatSubscriber) HubDeclaration() registry.Declaration {
	return registry.Hub("chatHub").
		Handle("messageReceived").
		Declaration()
}

func (s *chatSubscriber) MessageReceived(user, text string) {
	if user == s.self {
		return
	}
	fmt.Printf("[%s] %s\n", user, text)
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a JSON or YAML config file")
		serverURL  = flag.String("url", "", "hub endpoint, overrides the config file")
		user       = flag.String("user", "anonymous", "name shown to other chat clients")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *serverURL != "" {
		cfg.Connection.URL = *serverURL
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := hubconn.New(registry.New(),
		hubconn.WithLogger(logger),
		hubconn.WithTransportFactory(hubconn.WebSocketTransport(cfg.ClientOptions())),
	)
	defer conn.Close()

	chat, err := conn.Register(&chatSubscriber{self: *user})
	if err != nil {
		log.Fatalf("failed to register chat subscriber: %v", err)
	}

	conn.OnReconnecting(func() { fmt.Println("-- connection lost, reconnecting") })
	conn.OnReconnected(func() { fmt.Println("-- reconnected") })
	conn.OnDisconnected(func(err error) {
		if err != nil {
			logger.Warn("disconnected", "error", err)
		}
	})

	if err := connect(ctx, conn, cfg, logger); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	fmt.Printf("=== chat as %s, type a message and press enter ===\n", *user)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, open := <-lines:
			if !open {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := chat.Invoke(ctx, "send", *user, text); err != nil {
				logger.Error("send failed", "error", err)
			}
		}
	}
}

// connect retries the first connect every reconnect delay when reconnects
// are enabled; the connection only reconnects by itself after a drop.
func connect(ctx context.Context, conn *hubconn.Connection, cfg *config.Config, logger *logging.Logger) error {
	opts := cfg.ConnectionOptions()
	for {
		ok, err := conn.Connect(ctx, opts)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !opts.AttemptReconnects {
			return fmt.Errorf("could not connect to %s", opts.URL)
		}

		logger.Warn("connect failed, retrying", "url", opts.URL, "delay", cfg.Connection.ReconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Connection.ReconnectDelay):
		}
	}
}
