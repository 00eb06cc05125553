package stagg

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/nerrad567/kettle-bridge/internal/kettle"
)

var (
	_ kettle.Appliance  = (*Kettle)(nil)
	_ kettle.Discoverer = (*Discoverer)(nil)
)

// Kettle is a Bluetooth connection to a Fellow Stagg EKG+.
//
// Telemetry arrives as GATT notifications and is folded into the cached
// State; commands are written without response on the same characteristic.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Notifications are handled on the Bluetooth stack's goroutine.
type Kettle struct {
	adapter *bluetooth.Adapter
	address bluetooth.Address
	logger  kettle.Logger
	now     func() time.Time

	mu        sync.Mutex
	device    bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	connected bool
	seq       byte
	state     kettle.State
	rates     rateTracker

	// seen has one bit per notification type folded into state; ready is
	// closed once all of stateComplete has arrived.
	seen      byte
	ready     chan struct{}
	readySent bool
}

// Notification bits for seen.
const (
	seenPower byte = 1 << iota
	seenTarget
	seenCurrent

	stateComplete = seenPower | seenTarget | seenCurrent
)

func newKettle(adapter *bluetooth.Adapter, address bluetooth.Address, logger kettle.Logger) *Kettle {
	return &Kettle{
		adapter: adapter,
		address: address,
		logger:  logger,
		now:     time.Now,
		ready:   make(chan struct{}),
	}
}

// Address returns the kettle's hardware address.
func (k *Kettle) Address() string {
	return k.address.String()
}

// Connect opens the GATT connection, subscribes to telemetry, sends the
// init handshake and waits until power, target and current temperature have
// all been reported, so State never returns placeholder zeros. The Bluetooth
// calls block without a context, so on cancellation Connect returns
// ctx.Err() and the late connection is torn down when it completes.
func (k *Kettle) Connect(ctx context.Context) error {
	type result struct {
		device bluetooth.Device
		char   bluetooth.DeviceCharacteristic
		err    error
	}
	done := make(chan result, 1)

	go func() {
		device, char, err := k.dial()
		done <- result{device: device, char: char, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		k.mu.Lock()
		k.device = r.device
		k.char = r.char
		k.connected = true
		k.mu.Unlock()
		if err := k.awaitFirstState(ctx); err != nil {
			_ = k.Disconnect()
			return err
		}
		return nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.device.Disconnect()
			}
		}()
		return ctx.Err()
	}
}

// dial performs the blocking connect sequence.
func (k *Kettle) dial() (bluetooth.Device, bluetooth.DeviceCharacteristic, error) {
	var char bluetooth.DeviceCharacteristic

	serviceUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return bluetooth.Device{}, char, fmt.Errorf("parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(CharacteristicUUID)
	if err != nil {
		return bluetooth.Device{}, char, fmt.Errorf("parse characteristic uuid: %w", err)
	}

	device, err := k.adapter.Connect(k.address, bluetooth.ConnectionParams{})
	if err != nil {
		return device, char, fmt.Errorf("connect %s: %w", k.address.String(), err)
	}

	fail := func(err error) (bluetooth.Device, bluetooth.DeviceCharacteristic, error) {
		_ = device.Disconnect()
		return device, char, err
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return fail(fmt.Errorf("discover services: %w", err))
	}
	if len(services) == 0 {
		return fail(fmt.Errorf("%w: service %s", ErrCharacteristicMissing, ServiceUUID))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return fail(fmt.Errorf("discover characteristics: %w", err))
	}
	if len(chars) == 0 {
		return fail(fmt.Errorf("%w: characteristic %s", ErrCharacteristicMissing, CharacteristicUUID))
	}
	char = chars[0]

	if err := char.EnableNotifications(k.handleNotification); err != nil {
		return fail(fmt.Errorf("enable notifications: %w", err))
	}

	if _, err := char.WriteWithoutResponse(initHandshake); err != nil {
		return fail(fmt.Errorf("write init handshake: %w", err))
	}

	return device, char, nil
}

// awaitFirstState blocks until every field of State has been reported.
func (k *Kettle) awaitFirstState(ctx context.Context) error {
	k.mu.Lock()
	ready := k.readyChan()
	k.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrNoTelemetry, ctx.Err())
	}
}

// readyChan returns the ready channel, creating it if needed. Callers hold mu.
func (k *Kettle) readyChan() chan struct{} {
	if k.ready == nil {
		k.ready = make(chan struct{})
	}
	return k.ready
}

// IsConnected reports whether the GATT link is up.
func (k *Kettle) IsConnected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

// markDisconnected records a link drop reported by the adapter.
func (k *Kettle) markDisconnected() {
	k.mu.Lock()
	k.connected = false
	k.mu.Unlock()
	if k.logger != nil {
		k.logger.Info("kettle link dropped", "mac", k.address.String())
	}
}

// TurnOn switches the heater on.
func (k *Kettle) TurnOn(_ context.Context) error {
	return k.send(CommandPower, 1)
}

// TurnOff switches the heater off.
func (k *Kettle) TurnOff(_ context.Context) error {
	return k.send(CommandPower, 0)
}

// SetTargetTemperature sets the hold temperature in the kettle's current
// units.
func (k *Kettle) SetTargetTemperature(_ context.Context, temp int) error {
	k.mu.Lock()
	units := k.state.Units
	k.mu.Unlock()

	if err := ValidateTemperature(temp, units); err != nil {
		return err
	}
	return k.send(CommandTemperature, byte(temp)) //nolint:gosec // range validated above
}

// send writes one command frame and advances the sequence number.
func (k *Kettle) send(cmd Command, value byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.connected {
		return kettle.ErrNotConnected
	}

	frame := EncodeCommand(k.seq, cmd, value)
	k.seq++
	if _, err := k.char.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("write command %d: %w", cmd, err)
	}
	return nil
}

// handleNotification folds one GATT notification into the cached state.
func (k *Kettle) handleNotification(buf []byte) {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	for _, seg := range SplitSegments(buf) {
		u, ok := DecodeSegment(seg)
		if !ok {
			continue
		}
		switch u.Type {
		case NotifyPower:
			if k.state.IsOn && !u.IsOn {
				k.rates.reset()
			}
			k.state.IsOn = u.IsOn
			k.seen |= seenPower
		case NotifyTargetTemperature:
			k.state.TargetTemperature = u.Temperature
			k.state.Units = u.Units
			k.seen |= seenTarget
		case NotifyCurrentTemperature:
			k.state.CurrentTemperature = u.Temperature
			if u.Units != "" {
				k.state.Units = u.Units
			}
			k.rates.add(now, u.Temperature)
			k.seen |= seenCurrent
		}
	}

	if k.seen == stateComplete && !k.readySent {
		k.readySent = true
		close(k.readyChan())
	}
}

// State returns the latest telemetry.
func (k *Kettle) State() kettle.State {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := k.state
	s.AverageWarmingRate = k.rates.average()
	return s
}

// Disconnect closes the GATT link. Calling it on a dropped link is harmless.
func (k *Kettle) Disconnect() error {
	k.mu.Lock()
	wasConnected := k.connected
	device := k.device
	k.connected = false
	k.mu.Unlock()

	if !wasConnected {
		return nil
	}
	if err := device.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", k.address.String(), err)
	}
	return nil
}

// Discoverer finds kettles with a Bluetooth adapter.
type Discoverer struct {
	adapter *bluetooth.Adapter
	logger  kettle.Logger

	enableOnce sync.Once
	enableErr  error

	mu      sync.Mutex
	kettles map[string]*Kettle
}

// NewDiscoverer creates a discoverer on adapter (usually
// bluetooth.DefaultAdapter). The adapter is enabled on first use.
func NewDiscoverer(adapter *bluetooth.Adapter, logger kettle.Logger) *Discoverer {
	return &Discoverer{
		adapter: adapter,
		logger:  logger,
		kettles: make(map[string]*Kettle),
	}
}

func (d *Discoverer) enable() error {
	d.enableOnce.Do(func() {
		if err := d.adapter.Enable(); err != nil {
			d.enableErr = fmt.Errorf("enable bluetooth adapter: %w", err)
			return
		}
		d.adapter.SetConnectHandler(d.onConnectEvent)
	})
	return d.enableErr
}

// onConnectEvent routes adapter-level disconnects to the matching kettle.
func (d *Discoverer) onConnectEvent(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	d.mu.Lock()
	k := d.kettles[strings.ToUpper(device.Address.String())]
	d.mu.Unlock()
	if k != nil {
		k.markDisconnected()
	}
}

// DiscoverByAddress scans until the kettle with the given MAC advertises,
// then returns an unconnected handle for it.
func (d *Discoverer) DiscoverByAddress(ctx context.Context, mac string) (kettle.Appliance, error) {
	if err := d.enable(); err != nil {
		return nil, err
	}

	found := make(chan bluetooth.ScanResult, 1)
	scanDone := make(chan error, 1)

	go func() {
		scanDone <- d.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !strings.EqualFold(r.Address.String(), mac) {
				return
			}
			select {
			case found <- r:
			default:
			}
			_ = a.StopScan()
		})
	}()

	select {
	case r := <-found:
		<-scanDone
		return d.register(mac, r), nil
	case err := <-scanDone:
		select {
		case r := <-found:
			return d.register(mac, r), nil
		default:
		}
		if err != nil {
			return nil, fmt.Errorf("scan for %s: %w", mac, err)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
	case <-ctx.Done():
		_ = d.adapter.StopScan()
		<-scanDone
		return nil, ctx.Err()
	}
}

// register creates the kettle handle for a scan hit and tracks it for
// disconnect events.
func (d *Discoverer) register(mac string, r bluetooth.ScanResult) *Kettle {
	k := newKettle(d.adapter, r.Address, d.logger)
	d.mu.Lock()
	d.kettles[strings.ToUpper(r.Address.String())] = k
	d.mu.Unlock()
	if d.logger != nil {
		d.logger.Debug("kettle found", "mac", mac, "rssi", r.RSSI)
	}
	return k
}
