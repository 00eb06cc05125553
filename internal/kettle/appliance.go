package kettle

import "context"

// State is the kettle telemetry as last reported over Bluetooth.
type State struct {
	IsOn               bool
	CurrentTemperature int
	TargetTemperature  int

	// AverageWarmingRate is degrees per second over the recent history.
	AverageWarmingRate float64

	// Units is "F" or "C" as reported by the kettle, empty until known.
	Units string
}

// Appliance is a connection to one kettle.
type Appliance interface {
	// Connect establishes the link. It may be called again after the link
	// drops.
	Connect(ctx context.Context) error

	// IsConnected reports whether the link is currently up.
	IsConnected() bool

	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error

	// SetTargetTemperature sets the hold temperature in the kettle's units.
	SetTargetTemperature(ctx context.Context, temp int) error

	// State returns the latest telemetry without blocking.
	State() State

	// Disconnect tears the link down. Safe to call on a dropped link.
	Disconnect() error
}

// Discoverer finds a kettle by its hardware address.
type Discoverer interface {
	DiscoverByAddress(ctx context.Context, mac string) (Appliance, error)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
