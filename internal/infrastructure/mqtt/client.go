package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with *logging.Logger and *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler receives one message. The topic has wildcards expanded.
// A returned error is logged; it never ends the subscription.
type MessageHandler func(topic string, payload []byte) error

// Client is one broker session: a paho connection plus the subscriptions
// opened on it. Subscriptions are replayed whenever paho reconnects.
//
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	opts   sessionOptions
	logger Logger

	mu     sync.Mutex
	online bool
	routes map[string]route // keyed by topic filter
}

// route is a subscription kept for replay after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Connect opens a broker session.
//
// Parameters:
//   - ctx: Bounds the connection attempt together with the connect timeout
//   - cfg: MQTT configuration
//   - opts: Session options; WithClientID is required
//
// Returns:
//   - *Client: Connected session ready for use
//   - error: ErrConnectionFailed (wrapped) if the broker is unreachable or refuses
func Connect(ctx context.Context, cfg config.MQTTConfig, opts ...Option) (*Client, error) {
	var so sessionOptions
	for _, opt := range opts {
		opt(&so)
	}
	if so.clientID == "" {
		return nil, ErrMissingClientID
	}

	c := &Client{
		opts:   so,
		logger: so.logger,
		routes: make(map[string]route),
	}

	po := buildClientOptions(cfg, so)
	po.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	c.paho = pahomqtt.NewClient(po)

	if err := waitToken(ctx, c.paho.Connect(), defaultConnectTimeout); err != nil {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The paho OnConnect handler runs on its own goroutine and may not have
	// fired yet.
	c.setOnline(true)
	return c, nil
}

// waitToken waits for token, the timeout or ctx, whichever ends first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setOnline(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

// connected runs on every (re)connect.
func (c *Client) connected() {
	c.mu.Lock()
	c.online = true
	replay := make(map[string]route, len(c.routes))
	for filter, r := range c.routes {
		replay[filter] = r
	}
	c.mu.Unlock()

	for filter, r := range replay {
		// A failure here shows up as the next connection loss.
		c.paho.Subscribe(filter, r.qos, c.deliver(r.handler))
	}

	if c.opts.availability {
		c.paho.Publish(TopicAvailability, 1, true, AvailabilityOnline)
	}
}

func (c *Client) lost(err error) {
	c.setOnline(false)
	if c.logger != nil {
		c.logger.Warn("MQTT connection lost", "client_id", c.opts.clientID, "error", err)
	}
}

// IsConnected reports whether the session is usable right now.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	online := c.online
	c.mu.Unlock()
	return online && c.paho.IsConnected()
}

// ClientID returns the identifier this session connected with.
func (c *Client) ClientID() string {
	return c.opts.clientID
}

// Close disconnects the session. Sessions opened WithAvailability first
// publish a retained "offline" so consumers can tell a clean stop from the
// Last Will. Close always returns nil.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.opts.availability && c.IsConnected() {
		c.paho.Publish(TopicAvailability, 1, true, AvailabilityOffline).WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setOnline(false)
	return nil
}

// Subscribe registers handler for filter, which may contain the + and #
// wildcards. paho delivers in arrival order from one goroutine, so a slow
// handler holds up later messages.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	if err := checkRequest(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.routes[filter] = route{qos: qos, handler: handler}
	c.mu.Unlock()

	if err := waitToken(ctx, c.paho.Subscribe(filter, qos, c.deliver(handler)), defaultPublishTimeout); err != nil {
		c.forget(filter)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Unsubscribe drops filter. Messages already in flight may still arrive.
func (c *Client) Unsubscribe(ctx context.Context, filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(filter)
	if err := waitToken(ctx, c.paho.Unsubscribe(filter), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

func (c *Client) forget(filter string) {
	c.mu.Lock()
	delete(c.routes, filter)
	c.mu.Unlock()
}

// deliver adapts handler to paho, logging handler errors and panics.
func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil && c.logger != nil {
				c.logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil && c.logger != nil {
			c.logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}

// checkRequest validates a topic and QoS before they reach paho.
func checkRequest(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
