package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HMasataka/hubconn/internal/eventbus"
	"github.com/HMasataka/hubconn/logging"
	"github.com/HMasataka/hubconn/pkg/transport/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerStats is a snapshot of server counters
type ServerStats struct {
	ConnectedClients int     `json:"connected_clients"`
	MessagesSent     int64   `json:"messages_sent"`
	MessagesReceived int64   `json:"messages_received"`
	Uptime           float64 `json:"uptime"`
}

// peer is one client connected to the server.
type peer struct {
	*conn
	hubs map[string]struct{}
}

func (p *peer) subscribed(hub string) bool {
	if len(p.hubs) == 0 {
		return true
	}
	_, ok := p.hubs[strings.ToLower(hub)]
	return ok
}

// Server represents a WebSocket hub server
type Server struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger
	eventBus eventbus.Bus
	handlers *protocol.HandlerRegistry
	codec    protocol.Codec
	options  ServerOptions

	clients sync.Map // map[string]*peer

	messagesSent     int64
	messagesReceived int64
	startTime        time.Time
}

// NewServer creates a new WebSocket server
func NewServer(opts ...ServerOption) *Server {
	options := ServerOptions{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins by default (configure for production)
		},
		Conn: DefaultConnOptions(),
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.Logger == nil {
		options.Logger = logging.Discard()
	}
	if options.Handlers == nil {
		options.Handlers = protocol.NewHandlerRegistry()
	}

	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  options.ReadBufferSize,
			WriteBufferSize: options.WriteBufferSize,
			CheckOrigin:     options.CheckOrigin,
		},
		logger:    options.Logger.WithComponent("websocket-server"),
		eventBus:  options.EventBus,
		handlers:  options.Handlers,
		codec:     protocol.NewJSONCodec(),
		options:   options,
		startTime: time.Now(),
	}
}

// Handle registers fn as the implementation of hub.method.
func (s *Server) Handle(hub, method string, fn protocol.HandlerFunc) {
	s.handlers.Register(hub, method, fn)
}

func parseConnectionData(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	var hubs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(raw), &hubs); err != nil {
		return nil
	}
	set := make(map[string]struct{}, len(hubs))
	for _, h := range hubs {
		if h.Name != "" {
			set[strings.ToLower(h.Name)] = struct{}{}
		}
	}
	return set
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hubs := parseConnectionData(r.URL.Query().Get("connectionData"))

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade error",
			"error", err,
			"remote_addr", r.RemoteAddr,
		)
		return
	}

	clientID := uuid.NewString()
	p := &peer{hubs: hubs}
	p.conn = newConn(clientID, ws, s.logger, s.options.Conn, func(message []byte) {
		s.handleMessage(p, message)
	})

	s.clients.Store(clientID, p)
	s.publish(eventbus.EventClientConnected, map[string]string{
		"client_id":   clientID,
		"remote_addr": r.RemoteAddr,
	})

	p.start()

	s.logger.Info("client connected",
		"client_id", clientID,
		"remote_addr", r.RemoteAddr,
		"hubs", len(hubs),
	)

	if err := s.sendFrame(p, &protocol.ServerFrame{Init: 1}); err != nil {
		s.logger.Warn("failed to send init frame", "client_id", clientID, "error", err)
		p.abort()
	}

	// Wait for client to disconnect
	<-p.Done()
	p.wait()

	s.clients.Delete(clientID)
	s.publish(eventbus.EventClientDisconnected, map[string]string{
		"client_id": clientID,
	})

	s.logger.Info("client disconnected", "client_id", clientID)
}

func (s *Server) publish(eventType eventbus.EventType, data map[string]string) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.PublishAsync(eventbus.NewEvent(eventType, "websocket-server", data))
}

// handleMessage serves one invocation from a peer
func (s *Server) handleMessage(p *peer, message []byte) {
	atomic.AddInt64(&s.messagesReceived, 1)

	inv, err := s.codec.DecodeInvocation(message)
	if err != nil {
		s.logger.Warn("failed to decode invocation",
			"client_id", p.ID(),
			"error", err,
			"size", len(message),
		)
		return
	}

	reply := &protocol.ServerFrame{ID: inv.ID}

	handler, ok := s.handlers.Get(inv.Hub, inv.Method)
	if !ok {
		s.logger.Warn("unknown hub method", "client_id", p.ID(), "hub", inv.Hub, "method", inv.Method)
		reply.Error = ErrUnknownMethod.WithDetails(inv.Hub + "." + inv.Method).Error()
	} else {
		result, err := s.call(handler, p, inv)
		if err != nil {
			s.logger.Info("hub method failed", "client_id", p.ID(), "hub", inv.Hub, "method", inv.Method, "error", err)
			reply.Error = err.Error()
		} else if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				reply.Error = "failed to marshal result"
			} else {
				reply.Result = data
			}
		}
	}

	if inv.ID == "" {
		return
	}
	if err := s.sendFrame(p, reply); err != nil {
		s.logger.Warn("failed to send result", "client_id", p.ID(), "error", err)
	}
}

func (s *Server) call(handler protocol.Handler, p *peer, inv *protocol.Invocation) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("hub method panicked", "hub", inv.Hub, "method", inv.Method, "panic", r)
			result, err = nil, ErrInvocationFailed.WithDetails("internal error")
		}
	}()

	ctx := logging.WithLogger(context.Background(), s.logger.WithFields(map[string]any{
		"client_id": p.ID(),
		"hub":       inv.Hub,
		"method":    inv.Method,
	}))
	return handler.Handle(ctx, p, inv.Args)
}

func (s *Server) sendFrame(p *peer, frame *protocol.ServerFrame) error {
	data, err := s.codec.EncodeFrame(frame)
	if err != nil {
		return err
	}
	if err := p.Send(context.Background(), data); err != nil {
		return err
	}
	atomic.AddInt64(&s.messagesSent, 1)
	return nil
}

func eventFrame(hub, method string, args []any) (*protocol.ServerFrame, error) {
	inv, err := protocol.NewInvocation("", hub, method, args...)
	if err != nil {
		return nil, err
	}
	return &protocol.ServerFrame{
		Messages: []protocol.Event{{Hub: hub, Method: method, Args: inv.Args}},
	}, nil
}

// Broadcast sends hub event method to every client subscribed to hub and
// returns the number of clients reached.
func (s *Server) Broadcast(hub, method string, args ...any) (int, error) {
	frame, err := eventFrame(hub, method, args)
	if err != nil {
		return 0, err
	}

	var successCount, errorCount int
	s.clients.Range(func(key, value any) bool {
		p := value.(*peer)
		if !p.subscribed(hub) {
			return true
		}
		if err := s.sendFrame(p, frame); err != nil {
			errorCount++
			s.logger.Warn("failed to send to client", "client_id", p.ID(), "error", err)
		} else {
			successCount++
		}
		return true
	})

	s.logger.Debug("broadcast complete",
		"hub", hub,
		"method", method,
		"success_count", successCount,
		"error_count", errorCount,
	)
	return successCount, nil
}

// Send sends hub event method to one client.
func (s *Server) Send(clientID, hub, method string, args ...any) error {
	value, ok := s.clients.Load(clientID)
	if !ok {
		return ErrUnknownClient.WithDetails(clientID)
	}
	frame, err := eventFrame(hub, method, args)
	if err != nil {
		return err
	}
	return s.sendFrame(value.(*peer), frame)
}

// Drop closes a client's socket without a close handshake, which the
// client observes as an unexpected disconnect.
func (s *Server) Drop(clientID string) bool {
	value, ok := s.clients.Load(clientID)
	if !ok {
		return false
	}
	value.(*peer).abort()
	return true
}

// DropAll drops every connected client and returns how many were dropped.
func (s *Server) DropAll() int {
	n := 0
	s.clients.Range(func(key, value any) bool {
		value.(*peer).abort()
		n++
		return true
	})
	return n
}

// Clients returns the ids of connected clients
func (s *Server) Clients() []string {
	var ids []string
	s.clients.Range(func(key, value any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// Close gracefully closes every client connection.
func (s *Server) Close() {
	s.clients.Range(func(key, value any) bool {
		value.(*peer).Close()
		return true
	})
}

// Stats returns a snapshot of server counters
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ConnectedClients: len(s.Clients()),
		MessagesSent:     atomic.LoadInt64(&s.messagesSent),
		MessagesReceived: atomic.LoadInt64(&s.messagesReceived),
		Uptime:           time.Since(s.startTime).Seconds(),
	}
}
