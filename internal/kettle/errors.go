package kettle

import "errors"

// Domain-specific errors for kettle operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the kettle cannot be discovered or
	// connected. The underlying cause is wrapped.
	ErrConnectionFailed = errors.New("kettle: connection failed")

	// ErrNotConnected is returned by an appliance used without a live link.
	ErrNotConnected = errors.New("kettle: not connected")

	// ErrUnknownFillLevel is returned when a fill level name cannot be parsed.
	ErrUnknownFillLevel = errors.New("kettle: unknown fill level")

	// ErrSessionClosed is returned by WithSession after Close.
	ErrSessionClosed = errors.New("kettle: session manager closed")
)
