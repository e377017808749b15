// Package wire quantizes control signals into single byte commands and
// limits how often each channel is written to the actuator link.
package wire

import (
	"fmt"
	"github.com/swdee/go-visnav"
	"math"
)

// Channel identifies an actuator characteristic on the car.  The values
// match the last digit of the firmware characteristic UUIDs.
type Channel byte

const (
	LED      Channel = 1
	Throttle Channel = 2
	Steering Channel = 3
	Omega    Channel = 4
)

// Channels lists the channels in dispatch order
var Channels = []Channel{LED, Throttle, Steering, Omega}

// String returns the channel name
func (c Channel) String() string {
	switch c {
	case LED:
		return "led"
	case Throttle:
		return "throttle"
	case Steering:
		return "steering"
	case Omega:
		return "omega"
	default:
		return fmt.Sprintf("Channel(%d)", byte(c))
	}
}

// Neutral is the encoded value of 0.0, the midpoint of the byte range
var Neutral = Encode(0)

// Step is the float distance between two adjacent byte values
const Step = 2.0 / 255

// Command is a single quantized write to one channel
type Command struct {
	Channel Channel
	Value   byte
}

// String returns a readable form of the command
func (c Command) String() string {
	return fmt.Sprintf("%s=%d", c.Channel, c.Value)
}

// Encode maps v in [-1.0, 1.0] affinely onto [0, 255] with rounding.  Values
// outside the range are clamped and NaN is encoded as Neutral.
func Encode(v float64) byte {
	v = visnav.Clamp(v, -1, 1)
	return byte(math.Round((v + 1) * 127.5))
}

// Decode is the inverse of Encode
func Decode(b byte) float64 {
	return float64(b)/127.5 - 1
}

// EncodeLED returns the raw LED byte, the firmware expects 0 or 1
func EncodeLED(on bool) byte {
	if on {
		return 1
	}
	return 0
}

// Commands quantizes a control signal and LED state into one command per
// channel
func Commands(sig visnav.ControlSignal, led bool) []Command {
	return []Command{
		{Channel: LED, Value: EncodeLED(led)},
		{Channel: Throttle, Value: Encode(sig.Throttle)},
		{Channel: Steering, Value: Encode(sig.Steering)},
		{Channel: Omega, Value: Encode(sig.Omega)},
	}
}
