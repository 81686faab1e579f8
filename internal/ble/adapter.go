// Package ble provides the BLE session for driving a SARM arm controller
// (ESP32 firmware) over Bluetooth Low Energy. It handles discovery, the
// connection lifecycle, command writes and status notifications.
package ble

import "context"

// Default SARM BLE UUIDs, matching the ESP32 firmware.
const (
	ServiceUUID     = "12345678-1234-5678-1234-56789abcdef0"
	CommandCharUUID = "12345678-1234-5678-1234-56789abcdef1"
	StatusCharUUID  = "12345678-1234-5678-1234-56789abcdef2"
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic and waits for the acknowledgement.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
	// Unsubscribe stops notifications and drops the registered callback.
	Unsubscribe() error
}

// UnacknowledgedWriter is implemented by characteristics that support
// write-without-response. The session prefers it when available.
type UnacknowledgedWriter interface {
	WriteWithoutResponse(data []byte) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	// A nil callback removes the registration.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter. An error means the platform has no
	// usable BLE central support.
	Enable() error
	// Scan discovers BLE peripherals advertising the given service UUID.
	// Returns discovered devices until ctx is cancelled or timeout.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device with the given MAC address.
	Connect(ctx context.Context, mac string) (Connection, error)
}
