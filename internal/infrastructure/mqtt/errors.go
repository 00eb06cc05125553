package mqtt

import "errors"

// Sentinel errors; match with errors.Is.
var (
	// ErrConnectionFailed wraps any failure to open a session.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned when a session has lost its broker.
	ErrNotConnected = errors.New("mqtt: client not connected")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic or filter.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrMissingClientID is returned when a session is opened without WithClientID.
	ErrMissingClientID = errors.New("mqtt: client id is required")
)
