// Package stagg drives a Fellow Stagg EKG+ electric kettle over Bluetooth
// Low Energy using tinygo.org/x/bluetooth.
//
// The kettle exposes one serial-style characteristic. After connecting, the
// client writes a fixed init handshake; from then on the kettle streams
// telemetry notifications and accepts command frames:
//
//	ef dd 0a <seq> <cmd> <value> <seq+value> <cmd>
//
// Notifications carry one or more ef dd <type> <data…> segments: type 0 is
// the power state, 2 the target temperature and units, 3 the current
// temperature.
package stagg
