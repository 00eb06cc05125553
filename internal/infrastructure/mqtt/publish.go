package mqtt

import (
	"context"
	"fmt"
)

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends one message on this session and waits for the broker to
// acknowledge it (QoS 1 and 2) or for ctx to end.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := waitToken(ctx, c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w on %s", ErrPublishFailed, err, topic)
	}
	return nil
}
