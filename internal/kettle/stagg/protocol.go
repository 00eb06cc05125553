package stagg

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// GATT identifiers of the kettle's serial characteristic.
const (
	ServiceUUID        = "00001820-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "00002a80-0000-1000-8000-00805f9b34fb"
)

// magic starts every frame in both directions.
var magic = []byte{0xef, 0xdd}

// initHandshake must be written once after connecting before the kettle
// accepts commands or sends telemetry.
var initHandshake = mustHex("efdd0b3031323334353637383930313233349a6d")

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Command identifies a kettle command.
type Command byte

const (
	CommandPower       Command = 0x00
	CommandTemperature Command = 0x01
)

// commandFrameType marks a frame as a command.
const commandFrameType = 0x0a

// EncodeCommand builds a command frame:
//
//	ef dd 0a <seq> <cmd> <value> <seq+value> <cmd>
func EncodeCommand(seq byte, cmd Command, value byte) []byte {
	return []byte{magic[0], magic[1], commandFrameType, seq, byte(cmd), value, seq + value, byte(cmd)}
}

// Notification types sent by the kettle.
const (
	NotifyPower              byte = 0x00
	NotifyHold               byte = 0x01
	NotifyTargetTemperature  byte = 0x02
	NotifyCurrentTemperature byte = 0x03
)

// Segment is one ef dd <type> <data…> record from a notification.
type Segment struct {
	Type byte
	Data []byte
}

// SplitSegments splits a notification payload on the frame marker.
// Bytes before the first marker and segments without a type byte are dropped.
func SplitSegments(payload []byte) []Segment {
	var out []Segment
	for {
		i := bytes.Index(payload, magic)
		if i < 0 {
			return out
		}
		payload = payload[i+len(magic):]

		end := bytes.Index(payload, magic)
		body := payload
		if end >= 0 {
			body = payload[:end]
		}
		if len(body) > 0 {
			out = append(out, Segment{Type: body[0], Data: bytes.Clone(body[1:])})
		}
		if end < 0 {
			return out
		}
		payload = payload[end:]
	}
}

// Update is the telemetry carried by one segment. Only the fields named by
// its Type are meaningful.
type Update struct {
	Type        byte
	IsOn        bool
	Temperature int
	Units       string
}

// DecodeSegment interprets a segment. Unknown types and short segments
// return ok=false.
func DecodeSegment(s Segment) (u Update, ok bool) {
	u.Type = s.Type
	switch s.Type {
	case NotifyPower:
		if len(s.Data) < 1 {
			return u, false
		}
		u.IsOn = s.Data[0] == 1
		return u, true
	case NotifyTargetTemperature:
		if len(s.Data) < 2 {
			return u, false
		}
		u.Temperature = int(s.Data[0])
		u.Units = unitsFor(s.Data[1])
		return u, true
	case NotifyCurrentTemperature:
		if len(s.Data) < 1 {
			return u, false
		}
		u.Temperature = int(s.Data[0])
		if len(s.Data) >= 2 {
			u.Units = unitsFor(s.Data[1])
		}
		return u, true
	default:
		return u, false
	}
}

func unitsFor(flag byte) string {
	if flag == 1 {
		return "F"
	}
	return "C"
}

// Temperature limits accepted by the kettle.
const (
	MinFahrenheit = 104
	MaxFahrenheit = 212
	MinCelsius    = 40
	MaxCelsius    = 100
)

// ValidateTemperature checks temp against the kettle's range for units.
// Unknown units are treated as Fahrenheit, the kettle's factory setting.
func ValidateTemperature(temp int, units string) error {
	lo, hi := MinFahrenheit, MaxFahrenheit
	if units == "C" {
		lo, hi = MinCelsius, MaxCelsius
	}
	if temp < lo || temp > hi {
		return fmt.Errorf("%w: %d outside %d-%d", ErrTemperatureOutOfRange, temp, lo, hi)
	}
	return nil
}
