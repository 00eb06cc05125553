package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a session to connect.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// AvailabilityOnline and AvailabilityOffline are the retained payloads on
	// the availability topic.
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Option customises a single broker session.
type Option func(*sessionOptions)

type sessionOptions struct {
	clientID     string
	availability bool
	logger       Logger
}

// WithClientID sets the MQTT client identifier for the session. Every
// concurrently open session needs its own identifier or the broker will
// disconnect the older one.
func WithClientID(id string) Option {
	return func(o *sessionOptions) {
		o.clientID = id
	}
}

// WithAvailability registers a retained Last Will of "offline" on the
// availability topic, publishes "online" on every (re)connect and "offline"
// on a graceful Close. Use it for the long-lived subscribe session only.
func WithAvailability() Option {
	return func(o *sessionOptions) {
		o.availability = true
	}
}

// WithLogger routes handler errors, panics and connection losses to logger.
func WithLogger(logger Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// buildClientOptions creates paho MQTT options from the bridge config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Passthrough credentials (if provided)
//   - Auto-reconnect with exponential backoff once connected
//   - TLS configuration (if enabled)
//   - Clean session mode
//
// Initial connect retries are disabled: a session that cannot connect fails
// fast and the calling loop retries on its next cycle.
func buildClientOptions(cfg config.MQTTConfig, so sessionOptions) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(so.clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Deliver messages for one subscription in arrival order.
	opts.SetOrderMatters(true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	if so.availability {
		opts.SetWill(TopicAvailability, AvailabilityOffline, 1, true)
	}

	return opts
}
