package stagg

import "errors"

var (
	// ErrNotFound is returned when a scan ends without seeing the kettle.
	ErrNotFound = errors.New("stagg: kettle not found")

	// ErrCharacteristicMissing is returned when the kettle does not expose the
	// expected GATT service or characteristic.
	ErrCharacteristicMissing = errors.New("stagg: serial characteristic missing")

	// ErrNoTelemetry is returned when a connected kettle never reports its
	// full state.
	ErrNoTelemetry = errors.New("stagg: no telemetry after connect")

	// ErrTemperatureOutOfRange is returned for a target the kettle would reject.
	ErrTemperatureOutOfRange = errors.New("stagg: temperature out of range")
)
