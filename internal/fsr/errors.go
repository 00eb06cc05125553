package fsr

import "errors"

// Domain-specific errors for the FSR sampler.
var (
	// ErrNotReady is returned when fewer than WindowSize edges have been seen.
	ErrNotReady = errors.New("fsr: not enough samples")

	// ErrTriggerFailed is returned when the RC circuit cannot be re-armed.
	ErrTriggerFailed = errors.New("fsr: trigger circuit failed")

	// ErrWatchFailed is returned when edge notifications cannot be registered.
	ErrWatchFailed = errors.New("fsr: edge watch failed")

	// ErrLineUnavailable is returned when the GPIO line is used before it is requested.
	ErrLineUnavailable = errors.New("fsr: gpio line not requested")
)
