// Package transport provides the actuator link adapters used to deliver
// quantized commands to the car.
package transport

import (
	"context"
	"errors"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/wire"
)

var (
	// ErrLinkUnavailable is returned when a command could not be delivered
	// because the link is down or the write failed.  It is recoverable, the
	// command is retried on a later tick.
	ErrLinkUnavailable = errors.New("link unavailable")
)

// Adapter is an actuator link.  Each Send is an independent, idempotent write
// of a single byte to one channel.
type Adapter interface {
	// Name returns a short description of the link for logs and the HUD
	Name() string
	// Connect establishes the link and returns true on success
	Connect(ctx context.Context) bool
	// Send writes a single byte to the channel and returns true on success
	Send(ch wire.Channel, value byte) bool
	// Connected returns the current link availability
	Connected() bool
	// Disconnect closes the link
	Disconnect()
}

// Dispatch sends a command returning ErrLinkUnavailable if the link is down or
// the write fails
func Dispatch(a Adapter, cmd wire.Command) error {

	if !a.Connected() {
		return fmt.Errorf("%w: %s not connected", ErrLinkUnavailable, a.Name())
	}

	if !a.Send(cmd.Channel, cmd.Value) {
		return fmt.Errorf("%w: %s write of %s failed", ErrLinkUnavailable, a.Name(), cmd)
	}

	return nil
}

// New returns the adapter configured by cfg.  When cfg.Async is set the
// adapter is wrapped so writes never block the caller.
func New(cfg config.Transport, l hclog.Logger) (Adapter, error) {

	if l == nil {
		l = hclog.NewNullLogger()
	}

	var a Adapter
	var err error

	switch cfg.Kind {
	case "ble":
		a, err = NewBLE(cfg.BLE, l.Named("ble"))
	case "serial":
		a, err = NewSerial(cfg.Serial, l.Named("serial"))
	case "mqtt":
		a, err = NewMQTT(cfg.MQTT, cfg.ConnectTimeout.D(), l.Named("mqtt"))
	case "udp":
		a, err = NewUDP(cfg.UDP, l.Named("udp"))
	case "sim":
		a = NewSim(l.Named("sim"))
	default:
		return nil, fmt.Errorf("%w: unknown transport kind %q",
			config.ErrInvalidConfiguration, cfg.Kind)
	}

	if err != nil {
		return nil, err
	}

	if cfg.Async {
		a = NewAsync(a, l.Named("async"))
	}

	return a, nil
}
