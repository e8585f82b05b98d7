package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/HMasataka/hubconn"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport/websocket"
	"github.com/HMasataka/hubconn/registry"
)

// Config represents the application configuration
type Config struct {
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	Transport  TransportConfig  `json:"transport" yaml:"transport"`
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    logging.Config   `json:"logging" yaml:"logging"`
}

// ConnectionConfig represents hub connection configuration
type ConnectionConfig struct {
	URL               string        `json:"url" yaml:"url"`
	QueryString       string        `json:"query_string" yaml:"query_string"`
	Groups            []string      `json:"groups" yaml:"groups"`
	AttemptReconnects bool          `json:"attempt_reconnects" yaml:"attempt_reconnects"`
	ReconnectDelay    time.Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
}

// TransportConfig represents websocket transport configuration
type TransportConfig struct {
	HandshakeTimeout time.Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	InvokeTimeout    time.Duration `json:"invoke_timeout" yaml:"invoke_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout" yaml:"write_timeout"`
	ReadTimeout      time.Duration `json:"read_timeout" yaml:"read_timeout"`
	PingInterval     time.Duration `json:"ping_interval" yaml:"ping_interval"`
	MaxMessageSize   int64         `json:"max_message_size" yaml:"max_message_size"`
	SendBufferSize   int           `json:"send_buffer_size" yaml:"send_buffer_size"`
	EventBufferSize  int           `json:"event_buffer_size" yaml:"event_buffer_size"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Path         string        `json:"path" yaml:"path"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// Default returns the default configuration
func Default() *Config {
	client := websocket.DefaultClientOptions()

	return &Config{
		Connection: ConnectionConfig{
			URL:               "ws://localhost:3000/signalr",
			AttemptReconnects: true,
			ReconnectDelay:    hubconn.DefaultReconnectDelay,
		},
		Transport: TransportConfig{
			HandshakeTimeout: client.HandshakeTimeout,
			InvokeTimeout:    client.InvokeTimeout,
			WriteTimeout:     client.Conn.WriteTimeout,
			ReadTimeout:      client.Conn.ReadTimeout,
			PingInterval:     client.Conn.PingInterval,
			MaxMessageSize:   client.Conn.MaxMessageSize,
			SendBufferSize:   client.Conn.SendBufferSize,
			EventBufferSize:  client.EventBufferSize,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3000,
			Path:         "/signalr",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Connection.URL != "" {
		u, err := url.Parse(c.Connection.URL)
		if err != nil || u.Host == "" {
			return NewConfigError("connection.url", "must be an absolute URL")
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return NewConfigError("connection.url", "unsupported scheme "+u.Scheme)
		}
	}

	if c.Connection.ReconnectDelay <= 0 {
		return NewConfigError("connection.reconnect_delay", "delay must be positive")
	}

	for field, d := range map[string]time.Duration{
		"transport.handshake_timeout": c.Transport.HandshakeTimeout,
		"transport.invoke_timeout":    c.Transport.InvokeTimeout,
		"transport.write_timeout":     c.Transport.WriteTimeout,
		"transport.read_timeout":      c.Transport.ReadTimeout,
		"transport.ping_interval":     c.Transport.PingInterval,
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"server.idle_timeout":         c.Server.IdleTimeout,
	} {
		if d < 0 {
			return NewConfigError(field, "timeout cannot be negative")
		}
	}

	if c.Transport.PingInterval > 0 && c.Transport.ReadTimeout > 0 && c.Transport.PingInterval >= c.Transport.ReadTimeout {
		return NewConfigError("transport.ping_interval", "must be shorter than read_timeout")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewConfigError("server.port", "invalid port number")
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		return NewConfigError("server.path", "must start with /")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text", "pretty", "":
	default:
		return NewConfigError("logging.format", "must be json, text or pretty")
	}

	return nil
}

// ConnectionOptions converts the connection section to runtime options
func (c *Config) ConnectionOptions() hubconn.Options {
	return hubconn.Options{
		URL:               c.Connection.URL,
		QueryString:       c.Connection.QueryString,
		AttemptReconnects: c.Connection.AttemptReconnects,
		Groups:            registry.NewGroups(c.Connection.Groups...),
		ReconnectDelay:    c.Connection.ReconnectDelay,
	}
}

// ClientOptions converts the transport section to websocket client options
func (c *Config) ClientOptions() websocket.ClientOptions {
	opts := websocket.DefaultClientOptions()
	opts.URL = c.Connection.URL
	opts.QueryString = c.Connection.QueryString
	opts.HandshakeTimeout = c.Transport.HandshakeTimeout
	opts.InvokeTimeout = c.Transport.InvokeTimeout
	opts.EventBufferSize = c.Transport.EventBufferSize
	opts.Conn = websocket.ConnOptions{
		WriteTimeout:   c.Transport.WriteTimeout,
		ReadTimeout:    c.Transport.ReadTimeout,
		PingInterval:   c.Transport.PingInterval,
		MaxMessageSize: c.Transport.MaxMessageSize,
		SendBufferSize: c.Transport.SendBufferSize,
	}
	return opts
}
