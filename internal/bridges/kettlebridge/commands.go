package kettlebridge

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/kettle-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/kettle-bridge/internal/kettle"
)

// Purposes named in validation errors.
const (
	purposePower       = "for power toggle"
	purposeTemperature = "for setting target temp"
)

// HandleCommand applies one action message to the kettle.
//
// The payload is decoded and validated before the kettle session is
// touched, so a rejected command never triggers a Bluetooth connection.
//
// Returns:
//   - error: *DecodeError for a nil or non-UTF-8 payload, *ValidationError
//     for a value the command does not accept, or the session/kettle error.
//     Unknown topics are logged and return nil.
func (b *Bridge) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	if payload == nil || !utf8.Valid(payload) {
		return &DecodeError{Topic: topic, Payload: payload}
	}
	text := string(payload)

	var op func(ctx context.Context, app kettle.Appliance) error

	switch topic {
	case mqtt.TopicActionPower:
		switch text {
		case "on":
			op = func(ctx context.Context, app kettle.Appliance) error { return app.TurnOn(ctx) }
		case "off":
			op = func(ctx context.Context, app kettle.Appliance) error { return app.TurnOff(ctx) }
		default:
			return &ValidationError{Topic: topic, Payload: text, Purpose: purposePower}
		}

	case mqtt.TopicActionTargetTemperature:
		temp, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return &ValidationError{Topic: topic, Payload: text, Purpose: purposeTemperature}
		}
		op = func(ctx context.Context, app kettle.Appliance) error {
			return app.SetTargetTemperature(ctx, temp)
		}

	default:
		b.logWarn("unhandled topic", "topic", topic)
		return nil
	}

	b.logDebug("applying command", "topic", topic, "payload", text)
	return b.sessions.WithSession(ctx, op)
}
