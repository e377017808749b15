package transport

import (
	"context"
	"fmt"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/wire"
	"sync"
	"time"
	"tinygo.org/x/bluetooth"
)

// CharacteristicUUID returns the UUID string of a channel characteristic,
// formed by appending the channel number to the UUID base
func CharacteristicUUID(base string, ch wire.Channel) string {
	return fmt.Sprintf("%s%x", base, byte(ch))
}

// ServiceUUID returns the UUID string of the car service
func ServiceUUID(base string) string {
	return base + "0"
}

// BLE writes commands to the GATT characteristics of the car over bluetooth
// low energy.  The device is discovered by its advertised name.
type BLE struct {
	// connMu serializes scans and guards enabled, mu guards the resolved
	// connection only so Send and Connected never wait on a scan
	connMu  sync.Mutex
	mu      sync.Mutex
	l       hclog.Logger
	cfg     config.BLE
	adapter *bluetooth.Adapter
	enabled bool

	service bluetooth.UUID
	uuids   map[wire.Channel]bluetooth.UUID
	chars   map[wire.Channel]bluetooth.DeviceCharacteristic
	// disconnect closes the connected device
	disconnect func() error
}

// NewBLE returns a BLE link using the default host adapter
func NewBLE(cfg config.BLE, l hclog.Logger) (*BLE, error) {

	service, err := bluetooth.ParseUUID(ServiceUUID(cfg.UUIDBase))

	if err != nil {
		return nil, fmt.Errorf("%w: service uuid: %v", config.ErrInvalidConfiguration, err)
	}

	uuids := make(map[wire.Channel]bluetooth.UUID, len(wire.Channels))

	for _, ch := range wire.Channels {
		u, err := bluetooth.ParseUUID(CharacteristicUUID(cfg.UUIDBase, ch))

		if err != nil {
			return nil, fmt.Errorf("%w: %s characteristic uuid: %v",
				config.ErrInvalidConfiguration, ch, err)
		}

		uuids[ch] = u
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &BLE{
		l:       l,
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		service: service,
		uuids:   uuids,
	}, nil
}

// Name returns the link description
func (b *BLE) Name() string {
	return "ble:" + b.cfg.DeviceName
}

// Connect scans for the device by name, connects and resolves the channel
// characteristics.  The scan is bounded by the configured timeout.
func (b *BLE) Connect(ctx context.Context) bool {

	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.Connected() {
		return true
	}

	if !b.enabled {
		if err := b.adapter.Enable(); err != nil {
			b.l.Error("failed to enable bluetooth adapter", "err", err)
			return false
		}
		b.enabled = true
	}

	timeout := b.cfg.ScanTimeout.D()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.l.Info("scanning for device", "name", b.cfg.DeviceName, "timeout", timeout)

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	go func() {
		scanErr <- b.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if result.LocalName() != b.cfg.DeviceName {
				return
			}

			select {
			case found <- result:
			default:
			}

			a.StopScan()
		})
	}()

	var result bluetooth.ScanResult

	select {
	case result = <-found:
	case err := <-scanErr:
		b.l.Error("scan failed", "err", err)
		return false
	case <-ctx.Done():
		b.adapter.StopScan()
		b.l.Warn("device not found", "name", b.cfg.DeviceName)
		return false
	}

	b.l.Info("found device", "address", result.Address.String(), "rssi", result.RSSI)

	dev, err := b.adapter.Connect(result.Address, bluetooth.ConnectionParams{})

	if err != nil {
		b.l.Error("failed to connect", "err", err)
		return false
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{b.service})

	if err != nil || len(services) == 0 {
		b.l.Error("car service not found", "uuid", b.service.String(), "err", err)
		dev.Disconnect()
		return false
	}

	want := make([]bluetooth.UUID, 0, len(b.uuids))

	for _, u := range b.uuids {
		want = append(want, u)
	}

	chars, err := services[0].DiscoverCharacteristics(want)

	if err != nil {
		b.l.Error("failed to discover characteristics", "err", err)
		dev.Disconnect()
		return false
	}

	resolved := make(map[wire.Channel]bluetooth.DeviceCharacteristic, len(chars))

	for _, c := range chars {
		for ch, u := range b.uuids {
			if c.UUID() == u {
				resolved[ch] = c
			}
		}
	}

	for _, ch := range wire.Channels {
		if _, ok := resolved[ch]; !ok {
			b.l.Warn("characteristic missing", "channel", ch.String())
		}
	}

	b.mu.Lock()
	b.chars = resolved
	b.disconnect = dev.Disconnect
	b.mu.Unlock()

	b.l.Info("connected", "characteristics", len(resolved))

	return true
}

// Send writes the value to the channel characteristic without response
func (b *BLE) Send(ch wire.Channel, value byte) bool {

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.chars == nil {
		return false
	}

	c, ok := b.chars[ch]

	if !ok {
		return false
	}

	if _, err := c.WriteWithoutResponse([]byte{value}); err != nil {
		b.l.Warn("write failed, dropping connection", "channel", ch.String(), "err", err)
		b.drop()
		return false
	}

	b.l.Trace("write", "channel", ch.String(), "value", value)

	return true
}

// Connected returns true while characteristics are resolved
func (b *BLE) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chars != nil
}

// Disconnect closes the device connection
func (b *BLE) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop()
}

// drop releases the connection, caller must hold the lock
func (b *BLE) drop() {

	if b.disconnect != nil {
		if err := b.disconnect(); err != nil {
			b.l.Debug("disconnect error", "err", err)
		}
	}

	b.chars = nil
	b.disconnect = nil
}
