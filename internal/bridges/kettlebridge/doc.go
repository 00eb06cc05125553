// Package kettlebridge connects the kettle to MQTT.
//
// Two loops run side by side:
//   - The publish loop reads kettle telemetry and the FSR fill level every
//     poll interval and publishes them to the fellow/kettle/status topics.
//   - The command loop subscribes to fellow/kettle/action/# and turns each
//     message into a kettle call: power on/off or a new target temperature.
//
// Both loops reach the kettle through one shared session (kettle.SessionManager),
// which reconnects lazily when the Bluetooth link drops.
//
// # Payloads
//
//	fellow/kettle/status/power                "on" | "off"
//	fellow/kettle/status/current_temperature  decimal integer
//	fellow/kettle/status/target_temperature   decimal integer
//	fellow/kettle/status/warming_rate         decimal with a fractional part ("1.0")
//	fellow/kettle/status/fill_level           "LOW" | "MEDIUM" | "FULL"
//
//	fellow/kettle/action/power                "on" | "off"
//	fellow/kettle/action/target_temperature   decimal integer
//
// Rejected commands surface as *ValidationError or *DecodeError and are
// logged; they never end the command loop.
package kettlebridge
