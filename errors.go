package hubconn

import "github.com/HMasataka/hubconn/pkg/errors"

var (
	// ErrInvalidHub is returned for a hub name with no active proxy
	ErrInvalidHub = errors.New(errors.ErrorTypeConfiguration, "INVALID_HUB", "invalid hub")

	// ErrNoSubscriptions is returned when registering a subscriber that
	// declares no events
	ErrNoSubscriptions = errors.New(errors.ErrorTypeConfiguration, "NO_SUBSCRIPTIONS", "hub declaration has no subscriptions")

	// ErrUndeclared is returned for instances that carry no hub declaration
	ErrUndeclared = errors.New(errors.ErrorTypeConfiguration, "UNDECLARED", "instance has no hub declaration")

	// ErrInvalidOptions is returned when connection options cannot be used
	ErrInvalidOptions = errors.New(errors.ErrorTypeConfiguration, "INVALID_OPTIONS", "invalid connection options")

	// ErrDisconnected is returned for calls that waited on a reconnect that
	// did not succeed
	ErrDisconnected = errors.New(errors.ErrorTypeConnectivity, "DISCONNECTED", "connection is down")
)
