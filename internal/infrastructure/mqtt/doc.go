// Package mqtt provides MQTT broker sessions for the kettle bridge.
//
// This package manages:
//   - Session connection with passthrough credentials and optional TLS
//   - Message publishing with the configured QoS and retain policy
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the bridge availability topic
//   - The fixed fellow/kettle topic contract
//
// # Sessions
//
// Client is a single paho connection. Transport sits on top and decides how
// long a session lives: every Publish opens and closes its own session,
// while Subscribe keeps one session open until its context is cancelled.
// Each session gets its own client identifier so the broker never evicts one
// session in favour of another.
//
//	Bridge ──Publish──▶ [pub session] ──▶ Broker
//	Bridge ◀─handler─── [sub session] ◀── Broker
//
// # Security Considerations
//
//   - TLS is opt-in (cfg.Broker.TLS=true) with TLS 1.2 as the floor
//   - Credentials are passed through to the broker unchanged
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	transport := mqtt.NewTransport(cfg.MQTT, log)
//
//	err := transport.Publish(ctx, mqtt.TopicStatusPower, []byte("on"))
//
//	err = transport.Subscribe(ctx, mqtt.TopicActionWildcard,
//	    func(topic string, payload []byte) error {
//	        log.Info("received", "topic", topic, "payload", string(payload))
//	        return nil
//	    })
package mqtt
