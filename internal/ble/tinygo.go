package ble

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS, WinRT on Windows). On macOS, device addresses are CoreBluetooth
// UUIDs rather than MAC addresses; the MAC field carries whichever the
// platform uses.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter
	gate    enableGate

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by device address
}

// NewTinyGoAdapter creates a BLE adapter backed by the default system adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

// Enable checks the platform stack and powers on the adapter. A failed
// attempt is retried on the next call; once it succeeds later calls are
// no-ops.
func (a *TinyGoAdapter) Enable() error {
	return a.gate.do(func() error {
		if err := preflight(); err != nil {
			return fmt.Errorf("ble: bluetooth stack: %w", err)
		}
		if err := a.adapter.Enable(); err != nil {
			return fmt.Errorf("ble: enable adapter: %w", err)
		}

		// Register the adapter-level connect/disconnect handler.
		// tinygo/bluetooth fires it with connected=false when a
		// peripheral drops the link.
		a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
			if connected {
				return
			}
			id := device.Address.String()
			a.mu.Lock()
			conn, ok := a.connections[id]
			if ok {
				delete(a.connections, id)
			}
			a.mu.Unlock()
			if ok {
				conn.fireDisconnect()
			}
		})
		return nil
	})
}

// enableGate runs an enable step until it first succeeds.
type enableGate struct {
	mu      sync.Mutex
	enabled bool
}

func (g *enableGate) do(enable func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled {
		return nil
	}
	if err := enable(); err != nil {
		return err
	}
	g.enabled = true
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, serviceUUID string) ([]Device, error) {
	uuid, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	done := make(chan struct{})
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(done)
		return a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(uuid) {
				return
			}
			mac := result.Address.String()
			mu.Lock()
			defer mu.Unlock()
			if seen[mac] {
				return
			}
			seen[mac] = true
			devices = append(devices, Device{
				Name: result.LocalName(),
				MAC:  mac,
				RSSI: int(result.RSSI),
			})
		})
	})

	// Stop the scan when the window closes.
	group.Go(func() error {
		select {
		case <-gctx.Done():
			return a.adapter.StopScan()
		case <-done:
			return nil
		}
	})

	err = group.Wait()
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, mac string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(mac)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect can't be cancelled; drop the link if it
		// shows up after we gave up on it.
		go func() {
			if result := <-ch; result.err == nil {
				_ = result.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", mac, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", mac, result.err)
		}
		conn := &tinyGoConnection{device: result.device}

		// Track this connection so the adapter-level disconnect handler
		// can find it and fire its OnDisconnect callback.
		a.mu.Lock()
		a.connections[result.device.Address.String()] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device

	mu           sync.Mutex
	services     []bluetooth.DeviceService
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	svc, err := c.service(svcUUID)
	if err != nil {
		return nil, err
	}

	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s not found", charUUID)
	}

	return &tinyGoCharacteristic{
		char: chars[0],
		mac:  c.device.Address.String(),
		uuid: charUUIDParsed.String(),
	}, nil
}

// service resolves the primary service once per connection.
func (c *tinyGoConnection) service(uuid bluetooth.UUID) (bluetooth.DeviceService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, svc := range c.services {
		if svc.UUID() == uuid {
			return svc, nil
		}
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{uuid})
	if err != nil {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: service %s not found", uuid.String())
	}
	c.services = append(c.services, svcs[0])
	return svcs[0], nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// tinyGoCharacteristic is a resolved characteristic. The acknowledged
// Write is platform specific (see bluez_linux.go and platform_other.go).
type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
	mac  string // peer address
	uuid string // lower-case characteristic UUID

	mu   sync.Mutex
	path string // BlueZ object path, resolved on first acknowledged write
}

var _ UnacknowledgedWriter = (*tinyGoCharacteristic)(nil)

func (c *tinyGoCharacteristic) WriteWithoutResponse(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The platform may reuse buf after the callback returns.
		cp := make([]byte, len(buf))
		copy(cp, buf)
		cb(cp)
	})
}

func (c *tinyGoCharacteristic) Unsubscribe() error {
	return c.char.EnableNotifications(nil)
}
