package websocket

import "github.com/HMasataka/hubconn/pkg/errors"

var (
	ErrNotConnected      = errors.New(errors.ErrorTypeTransport, "NOT_CONNECTED", "transport is not connected")
	ErrConnectionClosed  = errors.New(errors.ErrorTypeTransport, "CONNECTION_CLOSED", "connection closed")
	ErrSendBufferFull    = errors.New(errors.ErrorTypeTransport, "SEND_BUFFER_FULL", "send buffer is full")
	ErrHandshake         = errors.New(errors.ErrorTypeTransport, "HANDSHAKE_FAILED", "handshake failed")
	ErrAlreadyStarted    = errors.New(errors.ErrorTypeTransport, "ALREADY_STARTED", "transport already started")
	ErrInvocationTimeout = errors.New(errors.ErrorTypeTimeout, "INVOCATION_TIMEOUT", "invocation timed out")
	ErrInvocationFailed  = errors.New(errors.ErrorTypeProtocol, "INVOCATION_FAILED", "remote invocation failed")
	ErrUnknownMethod     = errors.New(errors.ErrorTypeNotFound, "UNKNOWN_METHOD", "unknown hub method")
	ErrUnknownClient     = errors.New(errors.ErrorTypeNotFound, "UNKNOWN_CLIENT", "unknown client")
)
