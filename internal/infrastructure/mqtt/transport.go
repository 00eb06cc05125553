package mqtt

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
)

// inboundBuffer bounds how many received messages may wait for the handler.
const inboundBuffer = 64

// Transport hands out broker sessions for the bridge.
//
// Each Publish runs on its own short-lived session and each Subscribe holds
// one long-lived session for as long as its context lives. The two never
// share a connection, so a publish failure cannot take the command
// subscription down with it.
type Transport struct {
	cfg    config.MQTTConfig
	logger Logger
}

// NewTransport creates a transport for the configured broker.
//
// Parameters:
//   - cfg: MQTT configuration (broker, credentials, QoS, retain policy)
//   - logger: Receives session lifecycle and handler diagnostics; may be nil
func NewTransport(cfg config.MQTTConfig, logger Logger) *Transport {
	return &Transport{cfg: cfg, logger: logger}
}

// sessionID builds a unique client identifier for one session.
func (t *Transport) sessionID(role string) string {
	return fmt.Sprintf("%s-%s-%s", t.cfg.Broker.ClientIDPrefix, role, uuid.NewString()[:8])
}

func (t *Transport) sessionOptions(role string) []Option {
	opts := []Option{WithClientID(t.sessionID(role))}
	if t.logger != nil {
		opts = append(opts, WithLogger(t.logger))
	}
	return opts
}

// Publish opens a session, publishes one message and closes the session.
//
// The message uses the configured QoS and is retained when RetainStatus is
// set. Connection failures are returned wrapped in ErrConnectionFailed.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	client, err := Connect(ctx, t.cfg, t.sessionOptions("pub")...)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck // Close always returns nil

	return client.Publish(ctx, topic, payload, byte(t.cfg.QoS), t.cfg.RetainStatus) //nolint:gosec // QoS validated by config (0-2)
}

// Subscribe opens a session, subscribes to pattern and feeds every received
// message to handler until ctx is cancelled.
//
// Messages are delivered to handler one at a time, in arrival order, from
// the calling goroutine. A handler error or panic is logged and the
// subscription continues. On cancellation the session unsubscribes, closes
// and Subscribe returns ctx.Err().
//
// The session announces itself on the availability topic and leaves a Last
// Will so consumers can tell when the bridge is gone.
func (t *Transport) Subscribe(ctx context.Context, pattern string, handler MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	client, err := Connect(ctx, t.cfg, append(t.sessionOptions("sub"), WithAvailability())...)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck // Close always returns nil

	inbound := make(chan message, inboundBuffer)
	enqueue := func(topic string, payload []byte) error {
		select {
		case inbound <- message{topic: topic, payload: payload}:
		case <-ctx.Done():
		}
		return nil
	}

	if err := client.Subscribe(ctx, pattern, byte(t.cfg.QoS), enqueue); err != nil { //nolint:gosec // QoS validated by config (0-2)
		return err
	}
	t.logInfo("subscribed", "pattern", pattern, "client_id", client.ClientID())

	for {
		select {
		case <-ctx.Done():
			// The subscription context is gone; give the broker a fresh bound.
			unsubCtx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
			if err := client.Unsubscribe(unsubCtx, pattern); err != nil {
				t.logWarn("unsubscribe failed", "pattern", pattern, "error", err)
			}
			cancel()
			return ctx.Err()
		case msg := <-inbound:
			t.dispatch(handler, msg)
		}
	}
}

// message is one received publish waiting for the handler.
type message struct {
	topic   string
	payload []byte
}

// dispatch runs handler for msg, logging errors and recovering panics.
func (t *Transport) dispatch(handler MessageHandler, msg message) {
	defer func() {
		if r := recover(); r != nil {
			t.logWarn("message handler panic recovered", "topic", msg.topic, "panic", r)
		}
	}()

	if err := handler(msg.topic, msg.payload); err != nil {
		t.logWarn("message handler returned error", "topic", msg.topic, "error", err)
	}
}

func (t *Transport) logInfo(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Info(msg, args...)
	}
}

func (t *Transport) logWarn(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Warn(msg, args...)
	}
}
