package kettlebridge

import (
	"errors"
	"fmt"
)

// Domain errors for the kettle bridge package.
var (
	// ErrUnrecognizedPayload is wrapped by every ValidationError.
	ErrUnrecognizedPayload = errors.New("kettlebridge: unrecognized payload")

	// ErrUndecodablePayload is wrapped by every DecodeError.
	ErrUndecodablePayload = errors.New("kettlebridge: undecodable payload")
)

// ValidationError reports a command payload that decoded as text but is not
// a value the command accepts. The kettle is never contacted.
type ValidationError struct {
	Topic   string
	Payload string

	// Purpose names the command, e.g. "for power toggle".
	Purpose string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unrecognized payload %q %s", e.Payload, e.Purpose)
}

// Unwrap allows errors.Is(err, ErrUnrecognizedPayload).
func (e *ValidationError) Unwrap() error {
	return ErrUnrecognizedPayload
}

// DecodeError reports a command payload that is missing or not UTF-8 text.
type DecodeError struct {
	Topic   string
	Payload []byte
}

func (e *DecodeError) Error() string {
	if e.Payload == nil {
		return fmt.Sprintf("unable to handle payload <nil> on topic %s", e.Topic)
	}
	return fmt.Sprintf("unable to handle payload %q on topic %s", e.Payload, e.Topic)
}

// Unwrap allows errors.Is(err, ErrUndecodablePayload).
func (e *DecodeError) Unwrap() error {
	return ErrUndecodablePayload
}
